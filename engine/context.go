package engine

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
)

// Context carries one request through an engine. Items holds request-scoped
// values; every item implementing [io.Closer] is closed by Dispose.
type Context struct {
	Request  *Request
	Response *Response
	Items    map[string]any
	// Parameters holds the route parameters captured by the engine.
	Parameters map[string]string
	// Route is the pattern of the route that served the request, if any.
	Route string

	ctx      context.Context
	disposed sync.Once
}

// NewContext returns a context for req with a default response.
func NewContext(ctx context.Context, req *Request) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Request:    req,
		Response:   NewResponse(),
		Items:      make(map[string]any),
		Parameters: make(map[string]string),
		ctx:        ctx,
	}
}

// Context returns the cancellation context of the request.
func (c *Context) Context() context.Context { return c.ctx }

// Param returns a captured route parameter.
func (c *Context) Param(name string) string { return c.Parameters[name] }

// Dispose closes every io.Closer held in Items. Later calls are no-ops and
// return nil. Items are closed in key order so failures are reproducible.
func (c *Context) Dispose() error {
	var err error
	c.disposed.Do(func() {
		keys := make([]string, 0, len(c.Items))
		for k, v := range c.Items {
			if _, ok := v.(io.Closer); ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		var errs []error
		for _, k := range keys {
			if cerr := c.Items[k].(io.Closer).Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
