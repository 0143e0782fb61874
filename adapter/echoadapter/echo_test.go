package echoadapter_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/adapter/echoadapter"
	"github.com/iaconlabs/owinbridge/router"
)

func TestEchoV5Adapter_Contract(t *testing.T) {
	adapter.RunEngineContract(t, func() router.Router {
		return echoadapter.NewEchoAdapter()
	})
}

func TestEchoAdapter_ExtensionParams(t *testing.T) {
	rt := echoadapter.NewEchoAdapter()
	rt.GET("/users/:id.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rt.Param(r, "id")))
	})

	out := adapter.Invoke(t, rt, context.Background(),
		adapter.NewRequest(http.MethodGet, "/users/admin.json", ""), nil)
	assert.Equal(t, "admin.json", out.Body(t))
}

func TestEchoAdapter_EchoMiddlewareOnRoute(t *testing.T) {
	rt := echoadapter.NewEchoAdapter()
	rt.GET("/guarded", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("inside"))
	}, echoadapter.FromEcho(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			c.Response().Header().Set("X-Echo-Bridge", "active")
			return next(c)
		}
	}))

	out := adapter.Invoke(t, rt, context.Background(),
		adapter.NewRequest(http.MethodGet, "/guarded", ""), nil)
	assert.Equal(t, "inside", out.Body(t))
	assert.Equal(t, "active", out.Context.Response.Headers["X-Echo-Bridge"])
}

func TestFromEcho_SuccessFlow(t *testing.T) {
	mw := echoadapter.FromEcho(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			c.Response().Header().Set("X-Echo-Bridge", "active")
			return next(c)
		}
	})
	finalReached := false
	final := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		finalReached = true
	})

	w := httptest.NewRecorder()
	mw(final).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, finalReached)
	assert.Equal(t, "active", w.Header().Get("X-Echo-Bridge"))
}

func TestFromEcho_ShortCircuit(t *testing.T) {
	mw := echoadapter.FromEcho(func(echo.HandlerFunc) echo.HandlerFunc {
		return func(*echo.Context) error {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
	})
	finalReached := false
	final := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		finalReached = true
	})

	w := httptest.NewRecorder()
	mw(final).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, finalReached)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFromEcho_BodyPersistence(t *testing.T) {
	mw := echoadapter.FromEcho(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			body, _ := io.ReadAll(c.Request().Body)
			if string(body) != "payload" {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
			}
			return next(c)
		}
	})

	var seen string
	final := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = string(body)
	})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("payload"))
	mw(final).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "payload", seen)
}

func TestFromEcho_ContextValuePropagation(t *testing.T) {
	type ctxKey string
	const myKey ctxKey = "user-data"

	mw := echoadapter.FromEcho(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if c.Request().Context().Value(myKey) != "secret-info" {
				return echo.NewHTTPError(http.StatusInternalServerError, "context lost in echo")
			}
			return next(c)
		}
	})

	finalReached := false
	final := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		finalReached = r.Context().Value(myKey) == "secret-info"
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), myKey, "secret-info"))
	mw(final).ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, finalReached)
}

func TestFromEcho_ResponseHijacking(t *testing.T) {
	mw := echoadapter.FromEcho(func(echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			return c.String(http.StatusTeapot, "i am a teapot")
		}
	})
	finalReached := false
	final := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		finalReached = true
	})

	w := httptest.NewRecorder()
	mw(final).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, finalReached)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "i am a teapot", w.Body.String())
}

func TestFromEcho_Concurrency(t *testing.T) {
	mw := echoadapter.FromEcho(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error { return next(c) }
	})

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
				ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		}()
	}
	wg.Wait()
}

func TestFromEcho_RequestLoggerIntegration(t *testing.T) {
	var capturedStatus int
	var capturedMethod, capturedURI string

	logger := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogMethod: true,
		LogURI:    true,
		LogValuesFunc: func(_ *echo.Context, v middleware.RequestLoggerValues) error {
			capturedStatus = v.Status
			capturedMethod = v.Method
			capturedURI = v.URI
			return nil
		},
	})

	final := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	})

	req := httptest.NewRequest(http.MethodPut, "/v5/resource", nil)
	echoadapter.FromEcho(logger)(final).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, http.MethodPut, capturedMethod)
	assert.Equal(t, "/v5/resource", capturedURI)
	assert.Equal(t, http.StatusCreated, capturedStatus)
}
