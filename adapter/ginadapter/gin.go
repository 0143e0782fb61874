// Package ginadapter provides an engine backend for the Gin web framework.
package ginadapter

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/engine"
)

type routeEntry struct {
	method string
	route  adapter.Pattern
	onion  http.Handler
	regex  *regexp.Regexp
}

// GinAdapter implements router.Router using the Gin framework. Routes are
// collected and registered in Gin on the first request, which lets the
// backend detect parameter/catch-all conflicts Gin refuses to register.
type GinAdapter struct {
	engine      *gin.Engine
	middlewares []func(http.Handler) http.Handler
	routes      []*routeEntry
	once        sync.Once
}

// NewGinAdapter initializes a new backend with an internal Gin engine in
// release mode.
func NewGinAdapter() *GinAdapter {
	gin.SetMode(gin.ReleaseMode)
	return &GinAdapter{engine: gin.New()}
}

// HandleRequest routes req through Gin on its own goroutine.
func (a *GinAdapter) HandleRequest(ctx context.Context, req *engine.Request, preRequest engine.PreRequestHook,
	onComplete func(*engine.Context), onError func(error)) {
	a.once.Do(a.registerAll)
	adapter.Dispatch(onComplete, onError, func() (*engine.Context, error) {
		return adapter.ServeHTTP(ctx, req, preRequest, a.engine, nil)
	})
}

// Param retrieves a path parameter bound by the matched route.
func (a *GinAdapter) Param(r *http.Request, key string) string {
	return adapter.Param(r, key)
}

// Use adds standard net/http middlewares to the backend stack.
func (a *GinAdapter) Use(mws ...func(http.Handler) http.Handler) {
	a.middlewares = append(a.middlewares, mws...)
}

// GET registers a GET route.
func (a *GinAdapter) GET(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodGet, p, h, m...)
}

// POST registers a POST route.
func (a *GinAdapter) POST(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPost, p, h, m...)
}

// PUT registers a PUT route.
func (a *GinAdapter) PUT(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodPut, p, h, m...)
}

// DELETE registers a DELETE route.
func (a *GinAdapter) DELETE(p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(http.MethodDelete, p, h, m...)
}

func (a *GinAdapter) Handle(method, p string, h http.Handler, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

func (a *GinAdapter) HandleFunc(method, p string, h http.HandlerFunc, m ...func(http.Handler) http.Handler) {
	a.register(method, p, h, m...)
}

// Engine returns the underlying *gin.Engine instance.
func (a *GinAdapter) Engine() any { return a.engine }

func (a *GinAdapter) register(m, p string, h http.Handler, mws ...func(http.Handler) http.Handler) {
	a.routes = append(a.routes, &routeEntry{
		method: m,
		route:  adapter.ParsePattern(p),
		onion:  adapter.Chain(h, a.middlewares, mws),
	})
}

// registerAll installs the collected routes. Prefixes holding both a
// parameter route and a catch-all route are served by a shadow router.
func (a *GinAdapter) registerAll() {
	kinds := make(map[string]map[byte]bool)
	for _, r := range a.routes {
		base := staticBase(r.route.Path)
		if kinds[base] == nil {
			kinds[base] = make(map[byte]bool)
		}
		if len(r.route.Params) > 0 {
			kinds[base][':'] = true
		}
		if r.route.Wildcard != "" {
			kinds[base]['*'] = true
		}
	}

	shadowZones := make(map[string][]*routeEntry)
	for _, r := range a.routes {
		zone, shadowed := "", false
		for base, k := range kinds {
			if k[':'] && k['*'] && (r.route.Path == base || strings.HasPrefix(r.route.Path, base+"/")) {
				zone, shadowed = base, true
				break
			}
		}
		if shadowed {
			shadowZones[zone] = append(shadowZones[zone], r)
			continue
		}
		a.registerInGin(r)
	}

	for prefix, routes := range shadowZones {
		a.deployShadowRouter(prefix, routes)
	}
}

func (a *GinAdapter) registerInGin(r *routeEntry) {
	a.engine.Handle(r.method, ginPath(r.route), func(c *gin.Context) {
		params := r.route.Values(r.route.Wildcard, c.Param)
		adapter.Bind(c.Request, r.route.Path, params)
		r.onion.ServeHTTP(c.Writer, c.Request)
	})
}

func (a *GinAdapter) deployShadowRouter(prefix string, routes []*routeEntry) {
	sort.SliceStable(routes, func(i, j int) bool {
		return routeScore(routes[i].route) < routeScore(routes[j].route)
	})
	for _, r := range routes {
		r.regex = buildRegex(r.route)
	}

	a.engine.Any(prefix+"/*owinbridge_shadow", func(c *gin.Context) {
		reqPath := c.Request.URL.Path
		for _, r := range routes {
			if r.method != c.Request.Method {
				continue
			}
			matches := r.regex.FindStringSubmatch(reqPath)
			if matches == nil {
				continue
			}
			params := make(map[string]string, len(matches))
			for i, name := range r.regex.SubexpNames() {
				if i != 0 && name != "" {
					params[name] = matches[i]
				}
			}
			if r.route.Wildcard != "" {
				params[adapter.WildcardKey] = params[r.route.Wildcard]
			}
			adapter.Bind(c.Request, r.route.Path, params)
			r.onion.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.Status(http.StatusNotFound)
	})
}

// ginPath rewrites ":id.json" as ":id" since Gin parameters span the whole
// segment, and names the catch-all.
func ginPath(p adapter.Pattern) string {
	path := p.Prefix()
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			if dotIdx := strings.Index(seg, "."); dotIdx != -1 {
				segments[i] = seg[:dotIdx]
			}
		}
	}
	path = strings.Join(segments, "/")
	if p.Wildcard != "" {
		path += "*" + p.Wildcard
	}
	return path
}

func buildRegex(p adapter.Pattern) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	for _, seg := range strings.Split(strings.TrimPrefix(p.Prefix(), "/"), "/") {
		sb.WriteString("/")
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			// Like Gin, the parameter takes the whole segment.
			base, _, _ := strings.Cut(name, ".")
			sb.WriteString("(?P<" + base + ">[^/]+)")
			continue
		}
		sb.WriteString(regexp.QuoteMeta(seg))
	}
	if p.Wildcard != "" {
		sb.WriteString("(?P<" + p.Wildcard + ">.*)")
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}

func staticBase(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") || strings.HasPrefix(p, "*") {
			return strings.Join(parts[:i], "/")
		}
	}
	return path
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
