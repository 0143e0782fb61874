package owin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMissingKey reports a required environment key that is absent.
	ErrMissingKey = errors.New("owin: missing environment key")
	// ErrInvalidType reports an environment value of the wrong type.
	ErrInvalidType = errors.New("owin: environment value has unexpected type")
	// ErrInvalidEnvironment reports a request shape that violates the hosting contract.
	ErrInvalidEnvironment = errors.New("owin: invalid environment")
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("httptoken", func(fl validator.FieldLevel) bool {
		return isToken(fl.Field().String())
	})
	return v
}

// GetValidator returns the validator used by Validate. Register custom tags on
// it before serving requests.
func GetValidator() *validator.Validate {
	return defaultValidator
}

// requestShape is the subset of the environment checked with struct tags.
type requestShape struct {
	Method   string `validate:"required,httptoken"`
	Scheme   string `validate:"required,oneof=http https"`
	PathBase string `validate:"omitempty,startswith=/,endsnotwith=/"`
	Path     string `validate:"omitempty,startswith=/"`
	Protocol string `validate:"required,startswith=HTTP/"`
}

// FieldError describes one rule violated by the environment.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every rule the environment violated.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+":"+f.Rule)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidEnvironment, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEnvironment }

type keyCheck struct {
	key      string
	typeOK   func(any) bool
	optional bool
}

var keyChecks = []keyCheck{
	{key: RequestMethodKey, typeOK: isString},
	{key: RequestPathKey, typeOK: isString},
	{key: RequestPathBaseKey, typeOK: isString, optional: true},
	{key: RequestQueryStringKey, typeOK: isString, optional: true},
	{key: RequestSchemeKey, typeOK: isString, optional: true},
	{key: RequestProtocolKey, typeOK: isString, optional: true},
	{key: RequestHeadersKey, typeOK: isHeader},
	{key: RequestBodyKey, typeOK: isReader, optional: true},
	{key: ResponseHeadersKey, typeOK: isHeader},
	{key: ResponseBodyKey, typeOK: isWriter},
	{key: ResponseStatusCodeKey, typeOK: isInt, optional: true},
	{key: CallCancelledKey, typeOK: isContext, optional: true},
}

// Validate checks that env carries the keys an application needs, with the
// expected value types, and that the request shape is well formed.
func Validate(env Environment) error {
	if env == nil {
		return fmt.Errorf("%w: nil environment", ErrMissingKey)
	}

	for _, c := range keyChecks {
		v, ok := env[c.key]
		if !ok || v == nil {
			if c.optional {
				continue
			}
			return fmt.Errorf("%w: %s", ErrMissingKey, c.key)
		}
		if !c.typeOK(v) {
			return fmt.Errorf("%w: %s is %T", ErrInvalidType, c.key, v)
		}
	}

	shape := requestShape{
		Method:   env.Method(),
		Scheme:   env.Scheme(),
		PathBase: env.PathBase(),
		Path:     env.Path(),
		Protocol: env.Protocol(),
	}
	if err := defaultValidator.Struct(shape); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			out := &ValidationError{}
			for _, fe := range vErrs {
				out.Fields = append(out.Fields, FieldError{Field: strings.ToLower(fe.Field()), Rule: fe.Tag()})
			}
			return out
		}
		return fmt.Errorf("%w: %v", ErrInvalidEnvironment, err)
	}
	return nil
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isInt(v any) bool {
	_, ok := v.(int)
	return ok
}

func isHeader(v any) bool { return asHeader(v) != nil }

func isReader(v any) bool {
	_, ok := v.(io.Reader)
	return ok
}

func isWriter(v any) bool {
	_, ok := v.(io.Writer)
	return ok
}

func isContext(v any) bool {
	_, ok := v.(context.Context)
	return ok
}

// isToken reports whether s is a non-empty RFC 7230 token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
