// Package muxadapter implements an engine backend on top of the standard
// library [http.ServeMux].
package muxadapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/engine"
)

const replazor = "___replazor___"

// PathParamCleaner defines the strategy for encoding/decoding parameter names
// that might contain invalid characters for ServeMux (like dots).
type PathParamCleaner struct {
	encode func(string) string
	decode func(string) string
}

// MuxConfig holds configuration for the ServeMux backend.
type MuxConfig struct {
	PathParamCleaner PathParamCleaner
}

// NewDefaultMuxConfig returns a configuration with no path cleaning.
func NewDefaultMuxConfig() *MuxConfig {
	identity := func(s string) string { return s }
	return &MuxConfig{PathParamCleaner: PathParamCleaner{encode: identity, decode: identity}}
}

// SimpleCleanerMuxConfig returns a config that replaces dots with a safe
// placeholder, so routes like "/users/:id.json" can be registered.
func SimpleCleanerMuxConfig() *MuxConfig {
	return &MuxConfig{PathParamCleaner: PathParamCleaner{
		encode: func(s string) string {
			return strings.ReplaceAll(s, ".", replazor)
		},
		decode: func(s string) string {
			return strings.ReplaceAll(s, replazor, ".")
		},
	}}
}

// MuxAdapter implements router.Router using [http.ServeMux].
type MuxAdapter struct {
	mux         *http.ServeMux
	middlewares []func(http.Handler) http.Handler
	cfg         *MuxConfig
}

// NewMuxAdapter creates a new backend. If cfg is nil, the dot-cleaning
// config is used.
func NewMuxAdapter(cfg *MuxConfig) *MuxAdapter {
	if cfg == nil {
		cfg = SimpleCleanerMuxConfig()
	}
	return &MuxAdapter{
		mux: http.NewServeMux(),
		cfg: cfg,
	}
}

// HandleRequest routes req through the mux on its own goroutine.
func (a *MuxAdapter) HandleRequest(ctx context.Context, req *engine.Request, preRequest engine.PreRequestHook,
	onComplete func(*engine.Context), onError func(error)) {
	adapter.Dispatch(onComplete, onError, func() (*engine.Context, error) {
		return adapter.ServeHTTP(ctx, req, preRequest, a.mux, nil)
	})
}

func (a *MuxAdapter) Param(r *http.Request, key string) string {
	return adapter.Param(r, key)
}

func (a *MuxAdapter) GET(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
	a.register(http.MethodGet, path, h, mws...)
}

func (a *MuxAdapter) POST(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
	a.register(http.MethodPost, path, h, mws...)
}

func (a *MuxAdapter) PUT(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
	a.register(http.MethodPut, path, h, mws...)
}

func (a *MuxAdapter) DELETE(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
	a.register(http.MethodDelete, path, h, mws...)
}

func (a *MuxAdapter) Handle(method, path string, h http.Handler, mws ...func(http.Handler) http.Handler) {
	a.register(method, path, h, mws...)
}

func (a *MuxAdapter) HandleFunc(method, path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
	a.register(method, path, h, mws...)
}

func (a *MuxAdapter) Use(mws ...func(http.Handler) http.Handler) {
	a.middlewares = append(a.middlewares, mws...)
}

func (a *MuxAdapter) Engine() any { return a.mux }

func (a *MuxAdapter) register(method, path string, h http.Handler, routeMws ...func(http.Handler) http.Handler) {
	route := adapter.ParsePattern(path)
	translated, keys := a.translate(route.Path)

	onion := adapter.Chain(h, a.middlewares, routeMws)
	a.mux.Handle(method+" "+translated, a.wrapState(route, keys, onion))
}

// wrapState binds the matched route before the middleware onion runs.
func (a *MuxAdapter) wrapState(route adapter.Pattern, keys []string, onion http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]string, len(keys)+1)
		for _, k := range keys {
			if val := r.PathValue(a.cfg.PathParamCleaner.encode(k)); val != "" {
				params[k] = val
			}
		}
		if route.Wildcard != "" {
			params[adapter.WildcardKey] = params[route.Wildcard]
		}
		adapter.Bind(r, route.Path, params)
		onion.ServeHTTP(w, r)
	})
}

// translate turns ":id.json" into "{id___replazor___json}" and "*name" into
// "{name...}". ServeMux wildcards must span whole segments, so the parameter
// keeps its extension in the returned key list.
func (a *MuxAdapter) translate(path string) (string, []string) {
	var keys []string

	if before, after, found := strings.Cut(path, "*"); found {
		segPath, segKeys := a.translateSegments(before)
		name := after
		if name == "" {
			name = adapter.ParsePattern(path).Wildcard
		}
		keys = append(segKeys, name)
		return segPath + "{" + a.cfg.PathParamCleaner.encode(name) + "...}", keys
	}

	return a.translateSegments(path)
}

func (a *MuxAdapter) translateSegments(path string) (string, []string) {
	var keys []string
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if name, found := strings.CutPrefix(seg, ":"); found {
			keys = append(keys, name)
			segments[i] = "{" + a.cfg.PathParamCleaner.encode(name) + "}"
		}
	}
	return strings.Join(segments, "/"), keys
}

// Decode restores a parameter name encoded for ServeMux.
func (c *MuxConfig) Decode(name string) string {
	return c.PathParamCleaner.decode(name)
}
