package adapter

import (
	"net/http"
	"regexp"
	"strings"
)

// WildcardKey is the parameter key under which every backend exposes the
// catch-all value, in addition to its declared name.
const WildcardKey = "*"

const defaultWildcardName = "path"

// colonRegex identifies parameter placeholders in the format ":name" (e.g., :id, :user_id).
var colonRegex = regexp.MustCompile(`:([a-zA-Z0-9_]+)`)

// Pattern is a parsed route path.
type Pattern struct {
	// Path is the normalized path as registered.
	Path string
	// Params lists the segment parameter names in order.
	Params []string
	// Wildcard is the catch-all name, empty when the route has none.
	Wildcard string
}

// ParsePattern normalizes path and extracts its parameter names.
func ParsePattern(path string) Pattern {
	path = "/" + strings.TrimPrefix(path, "/")
	p := Pattern{Path: path}
	for _, m := range colonRegex.FindAllStringSubmatch(path, -1) {
		p.Params = append(p.Params, m[1])
	}
	if idx := strings.LastIndex(path, "*"); idx != -1 {
		name := path[idx+1:]
		if name == "" {
			name = defaultWildcardName
		}
		p.Wildcard = name
	}
	return p
}

// Prefix returns the part of the path before the catch-all.
func (p Pattern) Prefix() string {
	if idx := strings.LastIndex(p.Path, "*"); idx != -1 {
		return p.Path[:idx]
	}
	return p.Path
}

// TranslatePath converts ":param" placeholders into brace-style ones
// ("{param}") and replaces the catch-all with the text returned by wildcard.
// This is used by backends like go-chi, gorilla/mux or [http.ServeMux].
func (p Pattern) TranslatePath(wildcard func(name string) string) string {
	out := colonRegex.ReplaceAllStringFunc(p.Prefix(), func(m string) string {
		return "{" + strings.TrimPrefix(m, ":") + "}"
	})
	if p.Wildcard != "" {
		out += wildcard(p.Wildcard)
	}
	return out
}

// Values collects the route parameters through the framework accessor get.
// nativeWildcard is the key the framework stores the catch-all under.
func (p Pattern) Values(nativeWildcard string, get func(string) string) map[string]string {
	out := make(map[string]string, len(p.Params)+2)
	for _, name := range p.Params {
		out[name] = get(name)
	}
	if p.Wildcard != "" {
		v := strings.TrimPrefix(get(nativeWildcard), "/")
		out[p.Wildcard] = v
		out[WildcardKey] = v
	}
	return out
}

// Chain wraps h with the global middlewares followed by the route ones, so the
// first global middleware is the outermost layer.
func Chain(h http.Handler, global, route []func(http.Handler) http.Handler) http.Handler {
	stack := make([]func(http.Handler) http.Handler, 0, len(global)+len(route))
	stack = append(stack, global...)
	stack = append(stack, route...)
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	return h
}
