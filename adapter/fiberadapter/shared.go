package fiberadapter

import (
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
)

// clone forces a physical copy of s so it does not alias fasthttp buffers.
func clone(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(s)
	return b.String()
}

// fastHTTPResponseWriter lets net/http handlers write into a fasthttp
// response. Headers are copied when the status is committed.
type fastHTTPResponseWriter struct {
	ctx    *fasthttp.RequestCtx
	header http.Header
	status int
}

func newResponseWriter(ctx *fasthttp.RequestCtx) *fastHTTPResponseWriter {
	return &fastHTTPResponseWriter{ctx: ctx, header: make(http.Header)}
}

func (f *fastHTTPResponseWriter) Header() http.Header { return f.header }

func (f *fastHTTPResponseWriter) WriteHeader(status int) {
	if f.status != 0 {
		return
	}
	f.status = status
	for k, vals := range f.header {
		for _, v := range vals {
			f.ctx.Response.Header.Add(k, v)
		}
	}
	f.ctx.SetStatusCode(status)
}

func (f *fastHTTPResponseWriter) Write(b []byte) (int, error) {
	if f.status == 0 {
		f.WriteHeader(http.StatusOK)
	}
	return f.ctx.Write(b)
}

// Flush is a no-op; the body is buffered by fasthttp.
func (f *fastHTTPResponseWriter) Flush() {}

// finish commits the headers of a handler that never wrote.
func (f *fastHTTPResponseWriter) finish() {
	if f.status == 0 {
		f.WriteHeader(http.StatusOK)
	}
}
