package adapter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/router"
)

// NewHTTPRequest builds the net/http view of an engine request. Routing uses
// URL.Path; the base path is kept on the request State.
func NewHTTPRequest(ctx context.Context, req *engine.Request) (*http.Request, error) {
	target := RequestTarget(req)

	body := req.Body
	if body == nil {
		body = http.NoBody
	}

	r, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	r.RequestURI = target
	r.Header = req.Header.Clone()
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Host = HostHeader(req)
	r.URL.Host = r.Host
	r.URL.Scheme = req.URL.Scheme
	r.ContentLength = req.ContentLength
	if req.ContentLength == 0 {
		r.Body = http.NoBody
	}
	if req.ProtocolVersion != "" {
		if major, minor, ok := http.ParseHTTPVersion(req.ProtocolVersion); ok {
			r.Proto, r.ProtoMajor, r.ProtoMinor = req.ProtocolVersion, major, minor
		}
	}
	if req.UserHostAddress != "" {
		r.RemoteAddr = req.UserHostAddress
	}
	if req.URL.Scheme == "https" || req.ClientCertificate != nil {
		r.TLS = &tls.ConnectionState{HandshakeComplete: true}
		if req.ClientCertificate != nil {
			r.TLS.PeerCertificates = []*x509.Certificate{req.ClientCertificate}
		}
	}
	return r, nil
}

// RequestTarget returns the origin-form target used for routing.
func RequestTarget(req *engine.Request) string {
	target := req.URL.Path
	if target == "" {
		target = "/"
	}
	if req.URL.Query != "" {
		target += "?" + req.URL.Query
	}
	return target
}

// HostHeader returns the Host value for req.
func HostHeader(req *engine.Request) string {
	if req.URL.HostName == "" {
		return req.Header.Get("Host")
	}
	if req.URL.Port == 0 {
		return req.URL.HostName
	}
	return net.JoinHostPort(req.URL.HostName, strconv.Itoa(req.URL.Port))
}

// Recorder is an [http.ResponseWriter] that keeps the status, the headers and
// every body chunk in write order.
type Recorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	chunks      [][]byte
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{header: http.Header{}}
}

// Header returns the response header map.
func (rec *Recorder) Header() http.Header { return rec.header }

// WriteHeader records the status code. Only the first call has effect.
func (rec *Recorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	rec.status = code
}

// Write records a copy of p as one body chunk.
func (rec *Recorder) Write(p []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	if len(p) > 0 {
		rec.chunks = append(rec.chunks, append([]byte(nil), p...))
	}
	return len(p), nil
}

// Flush is a no-op so handlers that flush keep working.
func (rec *Recorder) Flush() {}

// Status returns the recorded status, 200 when nothing was written.
func (rec *Recorder) Status() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

// Chunks returns the recorded body chunks.
func (rec *Recorder) Chunks() [][]byte { return rec.chunks }

// Apply copies the recorded response into resp.
func (rec *Recorder) Apply(resp *engine.Response) {
	ApplyResponse(resp, rec.Status(), rec.header, rec.chunks)
}

// skippedHeaders are framing headers the host recomputes.
var skippedHeaders = map[string]struct{}{
	"Content-Length":    {},
	"Connection":        {},
	"Transfer-Encoding": {},
}

// ApplyResponse fills resp from a status, a header map and body chunks.
// Set-Cookie lines become cookies and Content-Type becomes ContentType; when a
// body exists without a content type it is sniffed like net/http does, and an
// empty body without one keeps the content type resp already had, normally
// [engine.DefaultContentType].
func ApplyResponse(resp *engine.Response, status int, header http.Header, chunks [][]byte) {
	resp.StatusCode = status
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	fallback := resp.ContentType
	resp.ContentType = ""

	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		key = http.CanonicalHeaderKey(key)
		if _, skip := skippedHeaders[key]; skip {
			continue
		}
		switch key {
		case "Set-Cookie":
			for _, line := range values {
				if c, err := http.ParseSetCookie(line); err == nil {
					resp.Cookies = append(resp.Cookies, engine.CookieFromHTTP(c))
				}
			}
		case "Content-Type":
			resp.ContentType = values[0]
		default:
			resp.Headers[key] = strings.Join(values, ", ")
		}
	}

	if resp.ContentType == "" && len(chunks) > 0 {
		resp.ContentType = http.DetectContentType(chunks[0])
	}
	if resp.ContentType == "" {
		resp.ContentType = fallback
	}

	resp.Contents = func(w io.Writer) error {
		for _, c := range chunks {
			if _, err := w.Write(c); err != nil {
				return err
			}
		}
		return nil
	}
}

// ServeHTTP runs h for req inside the engine context lifecycle. prepare, when
// not nil, may replace the *http.Request before it reaches h.
func ServeHTTP(ctx context.Context, req *engine.Request, preRequest engine.PreRequestHook,
	h http.Handler, prepare func(*http.Request) *http.Request) (*engine.Context, error) {
	return engine.Run(ctx, req, preRequest, func(c *engine.Context) error {
		r, err := NewHTTPRequest(c.Context(), c.Request)
		if err != nil {
			return err
		}

		state := NewState(c.Request.URL.BasePath)
		rctx := context.WithValue(r.Context(), router.StateKey, state)
		rctx = context.WithValue(rctx, router.ContextKey, c)
		r = r.WithContext(rctx)
		if prepare != nil {
			r = prepare(r)
		}

		rec := NewRecorder()
		h.ServeHTTP(rec, r)
		rec.Apply(c.Response)
		Collect(c, state)
		return nil
	})
}

// Collect copies the route data of state into c.
func Collect(c *engine.Context, state *State) {
	for k, v := range state.Params {
		c.Parameters[k] = v
	}
	c.Route = state.Route
}

// Dispatch runs serve on its own goroutine and reports the outcome through the
// engine callbacks.
func Dispatch(onComplete func(*engine.Context), onError func(error), serve func() (*engine.Context, error)) {
	go func() {
		c, err := serve()
		if err != nil {
			onError(err)
			return
		}
		onComplete(c)
	}()
}
