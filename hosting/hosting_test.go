package hosting_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaconlabs/owinbridge"
	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/hosting"
	"github.com/iaconlabs/owinbridge/owin"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestEnvironmentFromRequest(t *testing.T) {
	var env owin.Environment
	var body []byte
	h := hosting.NewHandler(func(e owin.Environment) error {
		env = e
		var err error
		body, err = io.ReadAll(e.RequestBody())
		return err
	}, hosting.Options{PathBase: "/app/", Logger: quiet})

	req := httptest.NewRequest(http.MethodPut, "http://example.com:8080/app/items/7?x=1", strings.NewReader("payload"))
	req.Header.Set("X-Trace", "abc")
	req.RemoteAddr = "10.0.0.3:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, env)
	is := assert.New(t)
	is.NoError(owin.Validate(env))
	is.Equal(http.MethodPut, env.Method())
	is.Equal("http", env.Scheme())
	is.Equal("/app", env.PathBase())
	is.Equal("/items/7", env.Path())
	is.Equal("x=1", env.QueryString())
	is.Equal("HTTP/1.1", env.Protocol())
	is.Equal("abc", env.RequestHeaders().Get("X-Trace"))
	is.Equal("example.com:8080", env.RequestHeaders().Get("Host"))
	is.Equal("7", env.RequestHeaders().Get("Content-Length"))
	is.Equal("10.0.0.3", env.RemoteIPAddress())
	is.Equal(5555, env.RemotePort())
	is.Equal("payload", string(body))
	is.Equal(http.StatusOK, rec.Code)
}

func TestPathOutsideBaseIsKept(t *testing.T) {
	var env owin.Environment
	h := hosting.NewHandler(func(e owin.Environment) error {
		env = e
		return nil
	}, hosting.Options{PathBase: "/app", Logger: quiet})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/application", nil))
	assert.Empty(t, env.PathBase())
	assert.Equal(t, "/application", env.Path())
}

func TestStatusCommittedOnFirstWrite(t *testing.T) {
	h := hosting.NewHandler(func(env owin.Environment) error {
		env.SetStatusCode(http.StatusCreated)
		env.ResponseHeaders().Set("X-Id", "7")
		_, err := io.WriteString(env.ResponseBody(), "created")
		// Too late: the status is already on the wire.
		env.SetStatusCode(http.StatusTeapot)
		return err
	}, hosting.Options{Logger: quiet})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("X-Id"))
	assert.Equal(t, "created", rec.Body.String())
}

func TestStatusCommittedWithoutBody(t *testing.T) {
	h := hosting.NewHandler(func(env owin.Environment) error {
		env.SetStatusCode(http.StatusNoContent)
		return nil
	}, hosting.Options{Logger: quiet})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestApplicationError(t *testing.T) {
	t.Run("before the response started", func(t *testing.T) {
		h := hosting.NewHandler(func(env owin.Environment) error {
			env.ResponseHeaders().Set("X-Partial", "1")
			return errors.New("boom")
		}, hosting.Options{Logger: quiet})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Partial"))
	})

	t.Run("after the response started", func(t *testing.T) {
		var logs bytes.Buffer
		h := hosting.NewHandler(func(env owin.Environment) error {
			_, _ = io.WriteString(env.ResponseBody(), "partial")
			return errors.New("boom")
		}, hosting.Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "partial", rec.Body.String())
		assert.Contains(t, logs.String(), "after the response started")
	})
}

func TestBridgeEndToEnd(t *testing.T) {
	b, err := owinbridge.New(engine.FromFunc(func(c *engine.Context) error {
		c.Response = engine.Chunks(http.StatusAccepted, []byte("hello "), []byte(c.Request.URL.Path))
		c.Response.WithCookie(engine.NewCookie("test", "testvalue"))
		return nil
	}), owinbridge.Options{Logger: quiet})
	require.NoError(t, err)

	handler, requests := httphelpers.RecordingHandler(hosting.NewHandler(b.Invoke, hosting.Options{Logger: quiet}))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		resp, err := http.Get(server.URL + "/greet")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
		assert.Equal(t, []string{"test=testvalue; Path=/"}, resp.Header.Values("Set-Cookie"))
		assert.Equal(t, "hello /greet", string(body))
	})

	require.Len(t, requests, 1)
	info := <-requests
	assert.Equal(t, "/greet", info.Request.URL.Path)
}
