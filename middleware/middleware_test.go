package middleware_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/iaconlabs/owinbridge/middleware"
	"github.com/iaconlabs/owinbridge/owin"
)

func newEnv(method, path string) (owin.Environment, *bytes.Buffer) {
	env := owin.NewEnvironment(method, path)
	body := &bytes.Buffer{}
	env[owin.ResponseBodyKey] = body
	return env, body
}

func okApp(called *int) owin.AppFunc {
	return func(env owin.Environment) error {
		*called++
		env.SetStatusCode(http.StatusOK)
		_, err := io.WriteString(env.ResponseBody(), "ok")
		return err
	}
}

func decode(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body.Bytes(), &out))
	return out
}

func TestRequireEnvironment_Valid(t *testing.T) {
	var called int
	env, body := newEnv(http.MethodGet, "/users")

	require.NoError(t, middleware.RequireEnvironment()(okApp(&called))(env))
	assert.Equal(t, 1, called)
	assert.Equal(t, "ok", body.String())
}

func TestRequireEnvironment_ValidationError(t *testing.T) {
	var called int
	env, body := newEnv("BAD METHOD", "users")
	env[owin.RequestSchemeKey] = "ftp"

	require.NoError(t, middleware.RequireEnvironment()(okApp(&called))(env))
	assert.Zero(t, called)
	assert.Equal(t, http.StatusBadRequest, env.StatusCode())
	assert.Equal(t, "application/json", env.ResponseHeaders().Get("Content-Type"))

	response := decode(t, body)
	assert.Equal(t, "error", response["status"])
	errList, ok := response["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errList, 3)

	first, ok := errList[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "method", first["field"])
	assert.Equal(t, "httptoken", first["rule"])
	assert.Equal(t, "Must be a valid HTTP token", first["message"])
}

func TestRequireEnvironment_MissingKey(t *testing.T) {
	var called int
	env, body := newEnv(http.MethodGet, "/")
	delete(env, owin.RequestHeadersKey)

	require.NoError(t, middleware.RequireEnvironment()(okApp(&called))(env))
	assert.Zero(t, called)
	assert.Equal(t, http.StatusBadRequest, env.StatusCode())
	assert.Contains(t, decode(t, body)["error"], owin.RequestHeadersKey)
}

func TestRateLimit(t *testing.T) {
	var called int
	app := middleware.RateLimit(rate.NewLimiter(rate.Limit(0.5), 2))(okApp(&called))

	for range 2 {
		env, _ := newEnv(http.MethodGet, "/")
		require.NoError(t, app(env))
		assert.Equal(t, http.StatusOK, env.StatusCode())
	}

	env, body := newEnv(http.MethodGet, "/")
	require.NoError(t, app(env))
	assert.Equal(t, 2, called)
	assert.Equal(t, http.StatusTooManyRequests, env.StatusCode())
	assert.Equal(t, "2", env.ResponseHeaders().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode(t, body)["error"])
}

func TestRateLimitByClient(t *testing.T) {
	var called int
	app := middleware.RateLimitByClient(1, 1)(okApp(&called))

	request := func(ip string) int {
		env, _ := newEnv(http.MethodGet, "/")
		env[owin.RemoteIPAddressKey] = ip
		require.NoError(t, app(env))
		return env.StatusCode()
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1"))
	assert.Equal(t, http.StatusOK, request("10.0.0.2"), "clients are limited separately")
	assert.Equal(t, 2, called)
}

func TestBasicAuth(t *testing.T) {
	hash, err := middleware.HashPassword("s3cret")
	require.NoError(t, err)

	basic := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: basic("admin", "s3cret"), want: http.StatusOK},
		{name: "lowercase scheme", header: "basic " + base64.StdEncoding.EncodeToString([]byte("admin:s3cret")), want: http.StatusOK},
		{name: "wrong password", header: basic("admin", "nope"), want: http.StatusUnauthorized},
		{name: "wrong user", header: basic("root", "s3cret"), want: http.StatusUnauthorized},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer token", want: http.StatusUnauthorized},
		{name: "garbage", header: "Basic !!!", want: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var called int
			env, _ := newEnv(http.MethodGet, "/admin")
			if tc.header != "" {
				env.RequestHeaders().Set("Authorization", tc.header)
			}

			require.NoError(t, middleware.BasicAuth("admin area", "admin", hash)(okApp(&called))(env))
			assert.Equal(t, tc.want, env.StatusCode())
			if tc.want == http.StatusUnauthorized {
				assert.Zero(t, called)
				assert.Equal(t, `Basic realm="admin area", charset="UTF-8"`,
					env.ResponseHeaders().Get("WWW-Authenticate"))
			} else {
				assert.Equal(t, 1, called)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	panicking := func(owin.Environment) error { panic("something went terribly wrong") }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("without stack", func(t *testing.T) {
		env, body := newEnv(http.MethodGet, "/")
		require.NoError(t, middleware.Recovery(logger, false)(panicking)(env))
		assert.Equal(t, http.StatusInternalServerError, env.StatusCode())
		assert.Equal(t, "Internal Server Error", decode(t, body)["error"])
	})

	t.Run("with stack", func(t *testing.T) {
		env, body := newEnv(http.MethodGet, "/")
		require.NoError(t, middleware.Recovery(logger, true)(panicking)(env))
		assert.Contains(t, decode(t, body)["error"], "PANIC RECOVERED: something went terribly wrong")
	})

	t.Run("no panic", func(t *testing.T) {
		var called int
		env, body := newEnv(http.MethodGet, "/")
		require.NoError(t, middleware.Recovery(nil, false)(okApp(&called))(env))
		assert.Equal(t, "ok", body.String())
	})
}

func TestChainOrder(t *testing.T) {
	var called int
	hash, err := middleware.HashPassword("pw")
	require.NoError(t, err)

	app := owin.Chain(okApp(&called),
		middleware.Recovery(nil, false),
		middleware.RequireEnvironment(),
		middleware.BasicAuth("r", "u", hash),
	)

	env, _ := newEnv("NOT VALID", "/")
	require.NoError(t, app(env))
	assert.Equal(t, http.StatusBadRequest, env.StatusCode(), "validation runs before authentication")
	assert.Empty(t, env.ResponseHeaders().Get("WWW-Authenticate"))
}
