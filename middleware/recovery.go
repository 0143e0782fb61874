package middleware

import (
	"fmt"
	log "log/slog"
	"net/http"
	"runtime/debug"

	"github.com/iaconlabs/owinbridge/owin"
)

// Recovery returns a middleware that recovers from panics, logs the error,
// and answers with an Internal Server Error (500). If stack is true, the
// stack trace is included in the log and in the response.
func Recovery(logger *log.Logger, stack bool) owin.Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next owin.AppFunc) owin.AppFunc {
		return func(env owin.Environment) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					message := fmt.Sprintf("PANIC RECOVERED: %v", rec)
					if stack {
						message = fmt.Sprintf("%s\n\n%s", message, string(debug.Stack()))
					}
					logger.Error(message, log.String("path", env.Path()))

					body := "Internal Server Error"
					if stack {
						body = message
					}
					err = sendJSONError(env, body, http.StatusInternalServerError)
				}
			}()
			return next(env)
		}
	}
}
