package fiberadapter

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
)

const (
	mwNextKey      = "ow_next"
	mwWriterKey    = "ow_writer"
	mwRequestKey   = "ow_req"
	mwContinuedKey = "ow_flow_continued"
)

var mwCtxPool = sync.Pool{
	New: func() any { return new(fasthttp.RequestCtx) },
}

// FromFiber converts a Fiber handler used as middleware into a net/http
// middleware. The chain continues when the Fiber handler calls c.Next;
// otherwise the Fiber response is written to the client as is. Headers the
// Fiber handler sets before c.Next are kept on the net/http response.
func FromFiber(fiberMw fiber.Handler) func(http.Handler) http.Handler {
	app := fiber.New(fiber.Config{Immutable: true})
	app.Use(fiberMw)
	app.All("/*", func(c fiber.Ctx) error {
		next, _ := c.Locals(mwNextKey).(http.Handler)
		w, _ := c.Locals(mwWriterKey).(http.ResponseWriter)
		r, _ := c.Locals(mwRequestKey).(*http.Request)
		if next == nil || w == nil || r == nil {
			return fiber.ErrInternalServerError
		}
		c.Locals(mwContinuedKey, true)

		c.Response().Header.VisitAll(func(k, v []byte) {
			key := clone(string(k))
			if w.Header().Get(key) == "" {
				w.Header().Add(key, clone(string(v)))
			}
		})

		next.ServeHTTP(w, r)
		return nil
	})
	fastHandler := app.Handler()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fctx := mwCtxPool.Get().(*fasthttp.RequestCtx)
			defer func() {
				fctx.SetUserValue(mwNextKey, nil)
				fctx.SetUserValue(mwWriterKey, nil)
				fctx.SetUserValue(mwRequestKey, nil)
				fctx.SetUserValue(mwContinuedKey, nil)
				mwCtxPool.Put(fctx)
			}()

			fctx.Request.Reset()
			fctx.Response.Reset()
			fctx.Response.Header.SetNoDefaultContentType(true)

			if r.Body != nil && r.Body != http.NoBody {
				body, _ := io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(body))
				fctx.Request.SetBody(body)
			}
			fctx.Request.SetRequestURI(r.URL.RequestURI())
			fctx.Request.Header.SetMethod(r.Method)
			fctx.Request.SetHost(r.Host)
			for k, vals := range r.Header {
				for _, v := range vals {
					fctx.Request.Header.Add(k, v)
				}
			}

			fctx.SetUserValue(mwNextKey, next)
			fctx.SetUserValue(mwWriterKey, w)
			fctx.SetUserValue(mwRequestKey, r)

			fastHandler(fctx)

			if fctx.UserValue(mwContinuedKey) == nil {
				fctx.Response.Header.VisitAll(func(k, v []byte) {
					w.Header().Add(clone(string(k)), clone(string(v)))
				})
				w.WriteHeader(fctx.Response.StatusCode())
				_, _ = w.Write(fctx.Response.Body())
			}
		})
	}
}
