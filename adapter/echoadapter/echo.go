// Package echoadapter provides an engine backend for the Echo v5 framework.
package echoadapter

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/engine"
)

// EchoAdapter implements router.Router using the Echo v5 framework.
type EchoAdapter struct {
	instance    *echo.Echo
	middlewares []func(http.Handler) http.Handler
}

// NewEchoAdapter initializes a new backend with an internal Echo v5 instance.
func NewEchoAdapter() *EchoAdapter {
	return &EchoAdapter{instance: echo.New()}
}

// HandleRequest routes req through Echo on its own goroutine.
func (a *EchoAdapter) HandleRequest(ctx context.Context, req *engine.Request, preRequest engine.PreRequestHook,
	onComplete func(*engine.Context), onError func(error)) {
	adapter.Dispatch(onComplete, onError, func() (*engine.Context, error) {
		return adapter.ServeHTTP(ctx, req, preRequest, a.instance, nil)
	})
}

// Param retrieves a path parameter, supporting extensions.
func (a *EchoAdapter) Param(r *http.Request, key string) string {
	return adapter.Param(r, key)
}

// Use registers middlewares into the global stack.
func (a *EchoAdapter) Use(mws ...func(http.Handler) http.Handler) {
	a.middlewares = append(a.middlewares, mws...)
}

func (a *EchoAdapter) GET(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodGet, p, h, m...)
}

func (a *EchoAdapter) POST(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPost, p, h, m...)
}

func (a *EchoAdapter) PUT(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPut, p, h, m...)
}

func (a *EchoAdapter) DELETE(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodDelete, p, h, m...)
}

func (a *EchoAdapter) Handle(method, p string, h http.Handler, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *EchoAdapter) HandleFunc(method, p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *EchoAdapter) Engine() any { return a.instance }

func (a *EchoAdapter) register(m, p string, h http.Handler, mws ...func(http.Handler) http.Handler) {
	route := adapter.ParsePattern(p)
	echoPath := route.Prefix()
	if route.Wildcard != "" {
		echoPath += "*"
	}
	a.instance.Add(m, echoPath, a.wrap(route, adapter.Chain(h, a.middlewares, mws)))
}

// wrap binds Echo path values and runs the net/http onion. Echo names
// ":id.json" parameters with their extension, which Param resolves.
func (a *EchoAdapter) wrap(route adapter.Pattern, onion http.Handler) echo.HandlerFunc {
	return func(c *echo.Context) error {
		params := make(map[string]string)
		for _, p := range c.PathValues() {
			if p.Name == "*" && route.Wildcard != "" {
				params[route.Wildcard] = p.Value
				params[adapter.WildcardKey] = p.Value
				continue
			}
			params[p.Name] = p.Value
		}
		adapter.Bind(c.Request(), route.Path, params)

		onion.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
