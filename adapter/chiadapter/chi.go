// Package chiadapter provides an engine backend for the go-chi router.
package chiadapter

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/engine"
)

// ChiAdapter implements router.Router using the chi v5 router.
type ChiAdapter struct {
	mux         *chi.Mux
	middlewares []func(http.Handler) http.Handler
}

// NewChiAdapter initializes a new backend with an empty chi router.
func NewChiAdapter() *ChiAdapter {
	return &ChiAdapter{
		mux: chi.NewRouter(),
	}
}

// HandleRequest routes req through chi on its own goroutine.
func (a *ChiAdapter) HandleRequest(ctx context.Context, req *engine.Request, preRequest engine.PreRequestHook,
	onComplete func(*engine.Context), onError func(error)) {
	adapter.Dispatch(onComplete, onError, func() (*engine.Context, error) {
		return adapter.ServeHTTP(ctx, req, preRequest, a.mux, nil)
	})
}

// Param extracts parameters bound by the matched chi route.
func (a *ChiAdapter) Param(r *http.Request, key string) string {
	return adapter.Param(r, key)
}

// Use adds middlewares to the local stack. They are not installed with
// a.mux.Use so that routes registered earlier keep their own onion.
func (a *ChiAdapter) Use(mws ...func(http.Handler) http.Handler) {
	a.middlewares = append(a.middlewares, mws...)
}

func (a *ChiAdapter) GET(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodGet, p, h, m...)
}

func (a *ChiAdapter) POST(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPost, p, h, m...)
}

func (a *ChiAdapter) PUT(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPut, p, h, m...)
}

func (a *ChiAdapter) DELETE(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodDelete, p, h, m...)
}

func (a *ChiAdapter) Handle(method, p string, h http.Handler, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *ChiAdapter) HandleFunc(method, p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *ChiAdapter) Engine() any { return a.mux }

func (a *ChiAdapter) wrapState(route adapter.Pattern, onion http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := route.Values("*", func(key string) string {
			return chi.URLParam(r, key)
		})
		adapter.Bind(r, route.Path, params)
		onion.ServeHTTP(w, r)
	})
}

func (a *ChiAdapter) register(method, path string, h http.Handler, routeMws ...func(http.Handler) http.Handler) {
	route := adapter.ParsePattern(path)
	chiPath := route.TranslatePath(func(string) string { return "*" })

	// chi panics on methods it does not know about.
	chi.RegisterMethod(method)

	onion := adapter.Chain(h, a.middlewares, routeMws)
	a.mux.Method(method, chiPath, a.wrapState(route, onion))
}
