package ginadapter

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type nextKey struct{}

// FromGin converts a Gin middleware into a net/http middleware usable with
// any backend. The Gin middleware must call c.Next to continue the chain;
// aborting stops it.
func FromGin(ginMw gin.HandlerFunc) func(http.Handler) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(ginMw)
	e.Any("/*path", func(c *gin.Context) {
		if next, ok := c.Request.Context().Value(nextKey{}).(http.Handler); ok {
			next.ServeHTTP(c.Writer, c.Request)
		}
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), nextKey{}, next)
			e.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
