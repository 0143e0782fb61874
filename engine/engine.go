// Package engine defines the request-handling engine contract the bridge talks
// to: the request and response objects, the per-request context and the
// callback-based Engine interface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrPanic wraps a panic raised while an engine handled a request.
var ErrPanic = errors.New("engine: panic while handling request")

// PreRequestHook receives the freshly built context before the engine
// processes it. It returns the context the engine continues with.
type PreRequestHook func(*Context) *Context

// Engine processes requests asynchronously. Exactly one of onComplete or
// onError is invoked, once, for every call to HandleRequest.
type Engine interface {
	HandleRequest(ctx context.Context, req *Request, preRequest PreRequestHook,
		onComplete func(*Context), onError func(error))
}

// HandlerFunc is an application function that fills c.Response.
type HandlerFunc func(c *Context) error

// FromFunc returns an Engine that runs fn on its own goroutine for every
// request.
func FromFunc(fn HandlerFunc) Engine {
	return funcEngine(fn)
}

type funcEngine HandlerFunc

func (f funcEngine) HandleRequest(ctx context.Context, req *Request, preRequest PreRequestHook,
	onComplete func(*Context), onError func(error)) {
	go func() {
		c, err := Run(ctx, req, preRequest, HandlerFunc(f))
		if err != nil {
			onError(err)
			return
		}
		onComplete(c)
	}()
}

// Run builds a context for req, applies preRequest and calls fn synchronously.
// Panics raised by fn are returned as errors wrapping [ErrPanic]. Engine
// backends use it to share the context lifecycle.
func Run(ctx context.Context, req *Request, preRequest PreRequestHook, fn HandlerFunc) (c *Context, err error) {
	c = NewContext(ctx, req)
	if preRequest != nil {
		if next := preRequest(c); next != nil {
			c = next
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, rec, debug.Stack())
		}
		if err != nil {
			_ = c.Dispose()
			c = nil
		}
	}()

	if err = ctx.Err(); err != nil {
		return c, err
	}
	err = fn(c)
	return c, err
}
