// Package hosting runs an owin.AppFunc behind net/http. It builds one
// environment per request and commits the status code the application
// recorded before the first body byte is written.
package hosting

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/iaconlabs/owinbridge/owin"
)

// Options configures a Handler.
type Options struct {
	// PathBase is the mount point stripped from request paths and reported
	// as owin.RequestPathBase. It must start with a slash and not end with one.
	PathBase string
	Logger   *slog.Logger
}

// Handler is an http.Handler serving requests with an owin.AppFunc.
type Handler struct {
	app  owin.AppFunc
	opts Options
	log  *slog.Logger
}

// NewHandler returns a Handler calling app for every request.
func NewHandler(app owin.AppFunc, opts Options) *Handler {
	h := &Handler{app: app, opts: opts, log: opts.Logger}
	h.opts.PathBase = strings.TrimSuffix(opts.PathBase, "/")
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	env := h.environment(w, r)
	body := env[owin.ResponseBodyKey].(*responseBody)

	err := h.app(env)
	switch {
	case err == nil:
		body.commit()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		h.log.Debug("hosting: request cancelled", slog.String("path", r.URL.Path), slog.Any("error", err))
	case body.committed:
		h.log.Error("hosting: application failed after the response started",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	default:
		h.log.Error("hosting: application failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		clear(w.Header())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) environment(w http.ResponseWriter, r *http.Request) owin.Environment {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	pathBase, path := "", r.URL.Path
	if h.opts.PathBase != "" && (path == h.opts.PathBase || strings.HasPrefix(path, h.opts.PathBase+"/")) {
		pathBase, path = h.opts.PathBase, strings.TrimPrefix(path, h.opts.PathBase)
	}

	// net/http moves the Host header out of the header map.
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if r.Host != "" {
		header.Set("Host", r.Host)
	}
	if r.ContentLength > 0 && header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}

	env := owin.Environment{
		owin.VersionKey:            owin.Version,
		owin.RequestMethodKey:      r.Method,
		owin.RequestSchemeKey:      scheme,
		owin.RequestPathBaseKey:    pathBase,
		owin.RequestPathKey:        path,
		owin.RequestQueryStringKey: r.URL.RawQuery,
		owin.RequestProtocolKey:    r.Proto,
		owin.RequestHeadersKey:     header,
		owin.RequestBodyKey:        r.Body,
		owin.ResponseHeadersKey:    w.Header(),
		owin.CallCancelledKey:      r.Context(),
	}
	env[owin.ResponseBodyKey] = &responseBody{w: w, env: env}

	if ip, port, ok := splitAddr(r.RemoteAddr); ok {
		env[owin.RemoteIPAddressKey] = ip
		env[owin.RemotePortKey] = port
	}
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if ip, port, ok := splitAddr(addr.String()); ok {
			env[owin.LocalIPAddressKey] = ip
			env[owin.LocalPortKey] = port
		}
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		env[owin.ClientCertificateKey] = r.TLS.PeerCertificates[0]
	}
	return env
}

func splitAddr(addr string) (string, string, bool) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", false
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", false
	}
	return host, port, true
}

// responseBody writes the status code recorded in the environment before
// the first byte reaches the client.
type responseBody struct {
	w         http.ResponseWriter
	env       owin.Environment
	committed bool
}

func (b *responseBody) commit() {
	if b.committed {
		return
	}
	b.committed = true
	b.w.WriteHeader(b.env.StatusCode())
}

func (b *responseBody) Write(p []byte) (int, error) {
	b.commit()
	return b.w.Write(p)
}

// Flush sends buffered data to the client.
func (b *responseBody) Flush() {
	b.commit()
	if f, ok := b.w.(http.Flusher); ok {
		f.Flush()
	}
}
