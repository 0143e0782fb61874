// Package router defines the contract for engine backends built on existing
// web frameworks, and the context keys they use to share request state with
// net/http handlers.
package router

import (
	"net/http"

	"github.com/iaconlabs/owinbridge/engine"
)

// ctxKey is a private type for context keys to avoid collisions with other packages.
type ctxKey string

const (
	// StateKey provides access to the adapter.State holding route data of the request.
	StateKey ctxKey = "___owinbridge_state___"
	// ContextKey provides access to the *engine.Context serving the request.
	ContextKey ctxKey = "___owinbridge_context___"
)

// Router is an [engine.Engine] whose routes are plain net/http handlers.
// Paths use ":name" for a segment parameter and a trailing "*name" for a
// catch-all. Routes must be registered before the first request.
type Router interface {
	engine.Engine

	// GET registers a new GET route with optional middlewares.
	GET(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler)
	// POST registers a new POST route with optional middlewares.
	POST(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler)
	// PUT registers a new PUT route with optional middlewares.
	PUT(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler)
	// DELETE registers a new DELETE route with optional middlewares.
	DELETE(path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler)

	Handle(method, path string, h http.Handler, mws ...func(http.Handler) http.Handler)
	HandleFunc(method, path string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler)

	// Use adds middlewares applied to routes registered afterwards.
	Use(mws ...func(http.Handler) http.Handler)
	// Param retrieves a route parameter by its key from the given request.
	Param(r *http.Request, key string) string
	// Engine returns the underlying framework instance (e.g., *gin.Engine).
	Engine() any
}
