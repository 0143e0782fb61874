package engine

import (
	"io"
	"net/http"
	"time"
)

// DefaultContentType is the content type of a response that does not set one.
const DefaultContentType = "text/html"

// Response is the framework-side response object. Contents streams the body;
// it is called once, after status and headers have been transferred.
type Response struct {
	StatusCode   int
	ReasonPhrase string
	Headers      map[string]string
	ContentType  string
	Cookies      []*Cookie
	Contents     func(w io.Writer) error
}

// NewResponse returns a 200 response with the default content type and an
// empty body.
func NewResponse() *Response {
	return &Response{
		StatusCode:  http.StatusOK,
		Headers:     make(map[string]string),
		ContentType: DefaultContentType,
		Contents:    NoBody,
	}
}

// NoBody writes nothing.
func NoBody(io.Writer) error { return nil }

// WithCookie appends a cookie and returns the response.
func (r *Response) WithCookie(c *Cookie) *Response {
	r.Cookies = append(r.Cookies, c)
	return r
}

// WithHeader sets a header and returns the response.
func (r *Response) WithHeader(name, value string) *Response {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
	return r
}

// Text returns a text/plain response with the given status and body.
func Text(status int, body string) *Response {
	r := NewResponse()
	r.StatusCode = status
	r.ContentType = "text/plain; charset=utf-8"
	r.Contents = func(w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	}
	return r
}

// Chunks returns a response whose body writes each chunk in order.
func Chunks(status int, chunks ...[]byte) *Response {
	r := NewResponse()
	r.StatusCode = status
	r.Contents = func(w io.Writer) error {
		for _, c := range chunks {
			if _, err := w.Write(c); err != nil {
				return err
			}
		}
		return nil
	}
	return r
}

// Cookie is a Set-Cookie directive attached to a response.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// NewCookie returns a cookie scoped to the site root.
func NewCookie(name, value string) *Cookie {
	return &Cookie{Name: name, Value: value, Path: "/"}
}

// String renders the cookie as a Set-Cookie header value.
func (c *Cookie) String() string {
	hc := http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		MaxAge:   c.MaxAge,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
	return hc.String()
}

// CookieFromHTTP converts a parsed net/http cookie.
func CookieFromHTTP(hc *http.Cookie) *Cookie {
	return &Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Path:     hc.Path,
		Domain:   hc.Domain,
		Expires:  hc.Expires,
		MaxAge:   hc.MaxAge,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
		SameSite: hc.SameSite,
	}
}
