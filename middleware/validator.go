// Package middleware provides owin.Middleware values that can run in front of
// a bridge or any other application delegate.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/iaconlabs/owinbridge/owin"
)

// ValidationError represents a specific validation failure for a field.
// It is intended to be returned as part of a structured JSON response.
type ValidationError struct {
	// Field is the environment value that failed validation.
	Field string `json:"field"`
	// Rule is the name of the validator tag that was violated (e.g., "required").
	Rule string `json:"rule"`
	// Message is a human-readable description of the error.
	Message string `json:"message"`
}

// RequireEnvironment returns a middleware rejecting environments that fail
// owin.Validate. Malformed requests get a 400 Bad Request listing the
// violated rules; missing keys or wrongly typed values get a plain JSON error.
func RequireEnvironment() owin.Middleware {
	return func(next owin.AppFunc) owin.AppFunc {
		return func(env owin.Environment) error {
			err := owin.Validate(env)
			if err == nil {
				return next(env)
			}

			var vErr *owin.ValidationError
			if errors.As(err, &vErr) {
				return sendDetailedError(env, formatValidationErrors(vErr))
			}
			return sendJSONError(env, err.Error(), http.StatusBadRequest)
		}
	}
}

func formatValidationErrors(vErr *owin.ValidationError) []ValidationError {
	errs := make([]ValidationError, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		errs = append(errs, ValidationError{
			Field:   f.Field,
			Rule:    f.Rule,
			Message: createMsgForTag(f.Rule),
		})
	}
	return errs
}

func createMsgForTag(tag string) string {
	switch tag {
	case "required":
		return "This field is required"
	case "httptoken":
		return "Must be a valid HTTP token"
	case "oneof":
		return "Unsupported value"
	case "startswith":
		return "Must start with the expected prefix"
	case "endsnotwith":
		return "Must not end with a trailing slash"
	default:
		return fmt.Sprintf("Validation failed on rule: %s", tag)
	}
}

// writeJSON answers env with code and v encoded as JSON. The response
// headers are only usable when the host provided them.
func writeJSON(env owin.Environment, code int, v any) error {
	env.SetStatusCode(code)
	env.ResponseHeaders().Set("Content-Type", "application/json")
	return json.NewEncoder(env.ResponseBody()).Encode(v)
}

// sendJSONError sends a simple structured JSON error message.
func sendJSONError(env owin.Environment, msg string, code int) error {
	return writeJSON(env, code, map[string]string{"error": msg})
}

// sendDetailedError sends a 400 response containing a list of validation errors.
func sendDetailedError(env owin.Environment, errs []ValidationError) error {
	return writeJSON(env, http.StatusBadRequest, map[string]any{
		"status": "error",
		"errors": errs,
	})
}
