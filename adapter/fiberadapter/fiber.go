// Package fiberadapter provides an engine backend for Fiber v3. Unlike the
// net/http based backends, requests are routed through the fasthttp handler
// of the Fiber app and the fasthttp response is read back into the engine
// response.
package fiberadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/router"
)

// requestKey is the fasthttp user value holding the *http.Request built for
// the engine request.
const requestKey = "ow_request"

type routeEntry struct {
	method string
	route  adapter.Pattern
	onion  http.Handler
}

// FiberAdapter implements router.Router using a Fiber v3 app. Routes are
// collected and installed on the first request because the app must know
// every custom method when it is created.
type FiberAdapter struct {
	app         *fiber.App
	middlewares []func(http.Handler) http.Handler
	routes      []*routeEntry
	once        sync.Once
	fastHandler fasthttp.RequestHandler
}

// NewFiberAdapter returns a backend with no routes.
func NewFiberAdapter() *FiberAdapter {
	return &FiberAdapter{}
}

var fctxPool = sync.Pool{
	New: func() any { return new(fasthttp.RequestCtx) },
}

// HandleRequest routes req through the Fiber app on its own goroutine.
func (a *FiberAdapter) HandleRequest(ctx context.Context, req *engine.Request, preRequest engine.PreRequestHook,
	onComplete func(*engine.Context), onError func(error)) {
	a.once.Do(a.registerAll)
	adapter.Dispatch(onComplete, onError, func() (*engine.Context, error) {
		return engine.Run(ctx, req, preRequest, a.serve)
	})
}

func (a *FiberAdapter) serve(c *engine.Context) error {
	var body []byte
	if c.Request.Body != nil {
		var err error
		if body, err = io.ReadAll(c.Request.Body); err != nil {
			return err
		}
	}

	r, err := adapter.NewHTTPRequest(c.Context(), c.Request)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	state := adapter.NewState(c.Request.URL.BasePath)
	rctx := context.WithValue(r.Context(), router.StateKey, state)
	rctx = context.WithValue(rctx, router.ContextKey, c)
	r = r.WithContext(rctx)

	fctx := fctxPool.Get().(*fasthttp.RequestCtx)
	defer func() {
		fctx.SetUserValue(requestKey, nil)
		fctxPool.Put(fctx)
	}()

	fctx.Request.Reset()
	fctx.Response.Reset()
	fctx.Response.Header.SetNoDefaultContentType(true)

	fctx.Request.SetRequestURI(adapter.RequestTarget(c.Request))
	fctx.Request.Header.SetMethod(c.Request.Method)
	fctx.Request.SetHost(r.Host)
	for k, vals := range r.Header {
		for _, v := range vals {
			fctx.Request.Header.Add(k, v)
		}
	}
	if len(body) > 0 {
		fctx.Request.SetBody(body)
	}
	fctx.SetUserValue(requestKey, r)

	a.fastHandler(fctx)

	// fctx goes back to the pool, so nothing may alias its buffers.
	header := make(http.Header)
	fctx.Response.Header.VisitAll(func(k, v []byte) {
		header.Add(string(k), string(v))
	})
	var chunks [][]byte
	if b := fctx.Response.Body(); len(b) > 0 {
		chunks = [][]byte{bytes.Clone(b)}
	}

	adapter.ApplyResponse(c.Response, fctx.Response.StatusCode(), header, chunks)
	adapter.Collect(c, state)
	return nil
}

func (a *FiberAdapter) registerAll() {
	methods := slices.Clone(fiber.DefaultMethods)
	for _, r := range a.routes {
		if !slices.Contains(methods, r.method) {
			methods = append(methods, r.method)
		}
	}
	a.app = fiber.New(fiber.Config{Immutable: true, RequestMethods: methods})

	// Static routes before parameters before catch-alls.
	sort.SliceStable(a.routes, func(i, j int) bool {
		return routeScore(a.routes[i].route) < routeScore(a.routes[j].route)
	})
	for _, r := range a.routes {
		a.app.Add([]string{r.method}, fiberPath(r.route), a.wrap(r))
	}
	a.fastHandler = a.app.Handler()
}

func (a *FiberAdapter) wrap(re *routeEntry) fiber.Handler {
	return func(c fiber.Ctx) error {
		r, ok := c.Locals(requestKey).(*http.Request)
		if !ok {
			return fiber.ErrInternalServerError
		}

		params := re.route.Values("*", func(key string) string {
			return unescape(c.Params(key))
		})
		adapter.Bind(r, re.route.Path, params)

		w := newResponseWriter(c.RequestCtx())
		re.onion.ServeHTTP(w, r)
		w.finish()
		return nil
	}
}

// fiberPath strips parameter extensions (":id.json" -> ":id") and reduces a
// named catch-all to Fiber's bare "*".
func fiberPath(p adapter.Pattern) string {
	segments := strings.Split(p.Prefix(), "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			if dotIdx := strings.Index(seg, "."); dotIdx != -1 {
				segments[i] = seg[:dotIdx]
			}
		}
	}
	path := strings.Join(segments, "/")
	if p.Wildcard != "" {
		path += "*"
	}
	return path
}

func unescape(raw string) string {
	if v, err := url.PathUnescape(raw); err == nil {
		return clone(v)
	}
	return clone(raw)
}

func routeScore(p adapter.Pattern) int {
	if p.Wildcard != "" {
		return 3
	}
	if len(p.Params) > 0 {
		return 2
	}
	return 1
}

func (a *FiberAdapter) Param(r *http.Request, key string) string {
	return adapter.Param(r, key)
}

func (a *FiberAdapter) Use(mws ...func(http.Handler) http.Handler) {
	a.middlewares = append(a.middlewares, mws...)
}

func (a *FiberAdapter) GET(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodGet, p, h, m...)
}

func (a *FiberAdapter) POST(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPost, p, h, m...)
}

func (a *FiberAdapter) PUT(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPut, p, h, m...)
}

func (a *FiberAdapter) DELETE(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodDelete, p, h, m...)
}

func (a *FiberAdapter) Handle(method, p string, h http.Handler, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *FiberAdapter) HandleFunc(method, p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *FiberAdapter) register(m, p string, h http.Handler, mws ...func(http.Handler) http.Handler) {
	a.routes = append(a.routes, &routeEntry{
		method: m,
		route:  adapter.ParsePattern(p),
		onion:  adapter.Chain(h, a.middlewares, mws),
	})
}

// Engine returns the *fiber.App. It is nil until the first request.
func (a *FiberAdapter) Engine() any { return a.app }
