// Package gorillaadapter provides an engine backend for gorilla/mux.
package gorillaadapter

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/engine"
)

// wildcardPattern lets a gorilla variable span several segments.
const wildcardPattern = ":.*"

// GorillaAdapter implements router.Router using a gorilla/mux router.
type GorillaAdapter struct {
	mux         *mux.Router
	middlewares []func(http.Handler) http.Handler
}

// NewGorillaAdapter initializes a new backend with an empty gorilla router.
func NewGorillaAdapter() *GorillaAdapter {
	return &GorillaAdapter{mux: mux.NewRouter()}
}

// HandleRequest routes req through gorilla/mux on its own goroutine.
func (a *GorillaAdapter) HandleRequest(ctx context.Context, req *engine.Request, preRequest engine.PreRequestHook,
	onComplete func(*engine.Context), onError func(error)) {
	adapter.Dispatch(onComplete, onError, func() (*engine.Context, error) {
		return adapter.ServeHTTP(ctx, req, preRequest, a.mux, nil)
	})
}

func (a *GorillaAdapter) Param(r *http.Request, key string) string {
	return adapter.Param(r, key)
}

func (a *GorillaAdapter) Use(mws ...func(http.Handler) http.Handler) {
	a.middlewares = append(a.middlewares, mws...)
}

func (a *GorillaAdapter) GET(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodGet, p, h, m...)
}

func (a *GorillaAdapter) POST(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPost, p, h, m...)
}

func (a *GorillaAdapter) PUT(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPut, p, h, m...)
}

func (a *GorillaAdapter) DELETE(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodDelete, p, h, m...)
}

func (a *GorillaAdapter) Handle(method, p string, h http.Handler, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *GorillaAdapter) HandleFunc(method, p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

// Engine returns the underlying *mux.Router.
func (a *GorillaAdapter) Engine() any { return a.mux }

func (a *GorillaAdapter) register(method, path string, h http.Handler, routeMws ...func(http.Handler) http.Handler) {
	route := adapter.ParsePattern(path)
	gorillaPath := route.TranslatePath(func(name string) string {
		return "{" + name + wildcardPattern + "}"
	})

	onion := adapter.Chain(h, a.middlewares, routeMws)
	a.mux.Handle(gorillaPath, a.wrapState(route, onion)).Methods(method)
}

func (a *GorillaAdapter) wrapState(route adapter.Pattern, onion http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		params := route.Values(route.Wildcard, func(key string) string { return vars[key] })
		adapter.Bind(r, route.Path, params)
		onion.ServeHTTP(w, r)
	})
}
