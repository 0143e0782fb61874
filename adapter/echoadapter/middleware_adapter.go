package echoadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v5"
)

type nextKey struct{}

// FromEcho adapts an Echo middleware into a net/http middleware. The request
// body is buffered so the Echo middleware and the next handler can both read
// it. Errors the Echo middleware returns are answered by Echo's
// HTTPErrorHandler.
func FromEcho(echoMw echo.MiddlewareFunc) func(http.Handler) http.Handler {
	e := echo.New()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil && r.Body != http.NoBody {
				body, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			bridgeHandler := func(c *echo.Context) error {
				current := c.Request()
				if body != nil {
					current.Body = io.NopCloser(bytes.NewReader(body))
				}
				if n, ok := current.Context().Value(nextKey{}).(http.Handler); ok {
					n.ServeHTTP(c.Response(), current)
				}
				return nil
			}

			c := e.NewContext(r, w)
			c.SetRequest(r.WithContext(context.WithValue(r.Context(), nextKey{}, next)))

			if err := echoMw(bridgeHandler)(c); err != nil {
				e.HTTPErrorHandler(c, err)
			}
		})
	}
}
