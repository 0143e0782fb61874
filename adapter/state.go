// Package adapter contains the logic shared by the engine backends: request
// state, path translation and the net/http <-> engine translation.
package adapter

import (
	"net/http"
	"strings"

	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/router"
)

// State centralizes the route metadata of one request so that handlers and
// the backend see the same values.
type State struct {
	// Params holds a normalized map of route parameters.
	Params map[string]string
	// Route is the registered pattern that matched.
	Route string
	// BasePath is the mount point the engine request carried.
	BasePath string
}

// NewState returns an empty state.
func NewState(basePath string) *State {
	return &State{Params: make(map[string]string), BasePath: basePath}
}

// StateFrom returns the state attached to r by a backend.
func StateFrom(r *http.Request) (*State, bool) {
	state, ok := r.Context().Value(router.StateKey).(*State)
	return state, ok && state != nil
}

// EngineContext returns the engine context serving r, giving handlers access
// to request items such as the hosting environment.
func EngineContext(r *http.Request) (*engine.Context, bool) {
	c, ok := r.Context().Value(router.ContextKey).(*engine.Context)
	return c, ok && c != nil
}

// Param looks up a route parameter. A key with an extension ("id.json")
// falls back to its base name and the other way around, and [WildcardKey]
// resolves the catch-all.
func Param(r *http.Request, key string) string {
	state, ok := StateFrom(r)
	if !ok {
		return ""
	}
	if val, ok := state.Params[key]; ok {
		return val
	}
	if dotIdx := strings.Index(key, "."); dotIdx != -1 {
		if val, ok := state.Params[key[:dotIdx]]; ok {
			return val
		}
	}
	// Routers that capture whole segments register ":id.json" as "id.json".
	for k, v := range state.Params {
		if strings.HasPrefix(k, key+".") {
			return v
		}
	}
	return ""
}

// Bind records a matched route on the request state.
func Bind(r *http.Request, route string, params map[string]string) {
	state, ok := StateFrom(r)
	if !ok {
		return
	}
	state.Route = route
	for k, v := range params {
		state.Params[k] = v
	}
}
