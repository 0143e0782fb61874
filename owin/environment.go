package owin

import (
	"context"
	"crypto/x509"
	"io"
	"net/http"
	"strconv"
)

// Environment is the dictionary exchanged between a host and an application.
// Keys follow the OWIN naming scheme; see the *Key constants.
type Environment map[string]any

// AppFunc is the application delegate. It returns once the response has been
// fully written to the environment.
type AppFunc func(env Environment) error

// Middleware wraps an AppFunc with additional behavior.
type Middleware func(next AppFunc) AppFunc

// Chain wraps app with mws. The first middleware is the outermost one.
func Chain(app AppFunc, mws ...Middleware) AppFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		app = mws[i](app)
	}
	return app
}

// NewEnvironment returns an environment with every required key populated.
// The response body discards output until the caller replaces it.
func NewEnvironment(method, path string) Environment {
	return Environment{
		VersionKey:            Version,
		RequestMethodKey:      method,
		RequestSchemeKey:      defaultScheme,
		RequestPathBaseKey:    "",
		RequestPathKey:        path,
		RequestQueryStringKey: "",
		RequestProtocolKey:    defaultProtocol,
		RequestHeadersKey:     http.Header{},
		RequestBodyKey:        http.NoBody,
		ResponseHeadersKey:    http.Header{},
		ResponseBodyKey:       io.Discard,
		CallCancelledKey:      context.Background(),
	}
}

func (e Environment) str(key string) string {
	s, _ := e[key].(string)
	return s
}

// Method returns the request method.
func (e Environment) Method() string { return e.str(RequestMethodKey) }

// Scheme returns the request scheme, "http" when absent.
func (e Environment) Scheme() string {
	if s := e.str(RequestSchemeKey); s != "" {
		return s
	}
	return defaultScheme
}

// PathBase returns the mount point of the application.
func (e Environment) PathBase() string { return e.str(RequestPathBaseKey) }

// Path returns the request path relative to PathBase.
func (e Environment) Path() string { return e.str(RequestPathKey) }

// QueryString returns the raw query string.
func (e Environment) QueryString() string { return e.str(RequestQueryStringKey) }

// Protocol returns the request protocol, "HTTP/1.1" when absent.
func (e Environment) Protocol() string {
	if s := e.str(RequestProtocolKey); s != "" {
		return s
	}
	return defaultProtocol
}

// RequestHeaders returns the request header map, or nil when absent.
func (e Environment) RequestHeaders() http.Header {
	return asHeader(e[RequestHeadersKey])
}

// ResponseHeaders returns the response header map, installing an empty one
// when the host did not provide it.
func (e Environment) ResponseHeaders() http.Header {
	if h := asHeader(e[ResponseHeadersKey]); h != nil {
		return h
	}
	h := http.Header{}
	e[ResponseHeadersKey] = h
	return h
}

func asHeader(v any) http.Header {
	switch h := v.(type) {
	case http.Header:
		return h
	case map[string][]string:
		return http.Header(h)
	default:
		return nil
	}
}

// RequestBody returns the request body, an empty reader when absent.
func (e Environment) RequestBody() io.Reader {
	if r, ok := e[RequestBodyKey].(io.Reader); ok && r != nil {
		return r
	}
	return http.NoBody
}

// ResponseBody returns the response body writer, [io.Discard] when absent.
func (e Environment) ResponseBody() io.Writer {
	if w, ok := e[ResponseBodyKey].(io.Writer); ok && w != nil {
		return w
	}
	return io.Discard
}

// StatusCode returns the response status code, 200 when unset.
func (e Environment) StatusCode() int {
	if code, ok := e[ResponseStatusCodeKey].(int); ok && code != 0 {
		return code
	}
	return defaultStatus
}

// SetStatusCode records the response status code.
func (e Environment) SetStatusCode(code int) { e[ResponseStatusCodeKey] = code }

// ReasonPhrase returns the optional reason phrase override.
func (e Environment) ReasonPhrase() string { return e.str(ResponseReasonPhraseKey) }

// SetReasonPhrase records a reason phrase override.
func (e Environment) SetReasonPhrase(phrase string) { e[ResponseReasonPhraseKey] = phrase }

// Context returns the cancellation context of the call.
func (e Environment) Context() context.Context {
	if ctx, ok := e[CallCancelledKey].(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// RemoteIPAddress returns the client address.
func (e Environment) RemoteIPAddress() string { return e.str(RemoteIPAddressKey) }

// LocalIPAddress returns the local address.
func (e Environment) LocalIPAddress() string { return e.str(LocalIPAddressKey) }

// LocalPort returns the local port, accepting string or int values.
func (e Environment) LocalPort() int { return e.port(LocalPortKey) }

// RemotePort returns the client port, accepting string or int values.
func (e Environment) RemotePort() int { return e.port(RemotePortKey) }

func (e Environment) port(key string) int {
	switch p := e[key].(type) {
	case int:
		return p
	case string:
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// ClientCertificate returns the TLS client certificate, if any.
func (e Environment) ClientCertificate() *x509.Certificate {
	cert, _ := e[ClientCertificateKey].(*x509.Certificate)
	return cert
}
