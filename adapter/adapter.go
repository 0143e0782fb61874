package adapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/router"
)

const (
	count           = 50
	firstLetterRune = 65 // 'A'
	contractTimeout = 5 * time.Second
)

// Outcome is the result of one HandleRequest call.
type Outcome struct {
	Context *engine.Context
	Err     error
}

// Body drains the response contents.
func (o Outcome) Body(t testing.TB) string {
	t.Helper()
	require.NoError(t, o.Err)
	require.NotNil(t, o.Context)
	var sb strings.Builder
	require.NoError(t, o.Context.Response.Contents(&sb))
	return sb.String()
}

// NewRequest returns an engine request for method and target ("/path?query").
func NewRequest(method, target string, body string) *engine.Request {
	path, query, _ := strings.Cut(target, "?")
	req := &engine.Request{
		Method:          method,
		URL:             engine.URL{Scheme: "http", HostName: "example.com", Path: path, Query: query},
		Header:          http.Header{},
		Body:            strings.NewReader(body),
		ContentLength:   int64(len(body)),
		ProtocolVersion: "HTTP/1.1",
		UserHostAddress: "127.0.0.1:50000",
	}
	return req
}

// Invoke calls HandleRequest on e and waits for its callback.
func Invoke(t testing.TB, e engine.Engine, ctx context.Context, req *engine.Request, pre engine.PreRequestHook) Outcome {
	t.Helper()
	done := make(chan Outcome, 1)
	e.HandleRequest(ctx, req, pre,
		func(c *engine.Context) { done <- Outcome{Context: c} },
		func(err error) { done <- Outcome{Err: err} },
	)
	select {
	case out := <-done:
		return out
	case <-time.After(contractTimeout):
		t.Fatal("engine never invoked a completion callback")
		return Outcome{}
	}
}

// RunEngineContract executes the functional contract every [router.Router]
// backend must satisfy: routing, parameters, response translation, context
// items and error reporting. factory must return a fresh instance per call.
func RunEngineContract(t *testing.T, factory func() router.Router) {
	t.Run("Status Headers and Body", func(t *testing.T) {
		testStatusHeadersBody(t, factory())
	})

	t.Run("Route Parameters", func(t *testing.T) {
		testRouteParameters(t, factory())
	})

	t.Run("Catch-All Wildcard Routes", func(t *testing.T) {
		testWildcard(t, factory())
	})

	t.Run("Request Translation", func(t *testing.T) {
		testRequestTranslation(t, factory())
	})

	t.Run("Cookies", func(t *testing.T) {
		testCookies(t, factory())
	})

	t.Run("Ordered Body Chunks", func(t *testing.T) {
		testOrderedChunks(t, factory())
	})

	t.Run("Not Found", func(t *testing.T) {
		testNotFound(t, factory())
	})

	t.Run("Pre-request Items", func(t *testing.T) {
		testPreRequestItems(t, factory())
	})

	t.Run("Middleware Order", func(t *testing.T) {
		testMiddlewareOrder(t, factory())
	})

	t.Run("Custom Methods via Handle", func(t *testing.T) {
		testCustomMethods(t, factory())
	})

	t.Run("Panics Reported", func(t *testing.T) {
		testPanic(t, factory())
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		testCancelled(t, factory())
	})

	t.Run("Concurrency Security", func(t *testing.T) {
		testConcurrency(t, factory())
	})
}

func testStatusHeadersBody(t *testing.T, rt router.Router) {
	is := assert.New(t)
	rt.GET("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Handler", "true")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/status", ""), nil)
	is.Equal(`{"ok":true}`, out.Body(t))
	is.Equal(http.StatusCreated, out.Context.Response.StatusCode)
	is.Equal("true", out.Context.Response.Headers["X-Handler"])
	is.True(strings.HasPrefix(out.Context.Response.ContentType, "application/json"))
	is.Equal("/status", out.Context.Route)
}

func testRouteParameters(t *testing.T, rt router.Router) {
	rt.GET("/org/:org/repo/:repo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rt.Param(r, "org") + "|" + rt.Param(r, "repo")))
	})

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/org/acme/repo/bridge", ""), nil)
	assert.Equal(t, "acme|bridge", out.Body(t))
	assert.Equal(t, "acme", out.Context.Parameters["org"])
	assert.Equal(t, "bridge", out.Context.Param("repo"))
	assert.Equal(t, "/org/:org/repo/:repo", out.Context.Route)
}

func testWildcard(t *testing.T, rt router.Router) {
	rt.GET("/static/*path", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("path:" + rt.Param(r, "path")))
	})

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/static/css/site.css", ""), nil)
	assert.Equal(t, "path:css/site.css", out.Body(t))
	assert.Equal(t, "css/site.css", out.Context.Parameters[WildcardKey])
}

func testRequestTranslation(t *testing.T, rt router.Router) {
	rt.POST("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		parts := []string{
			string(body),
			r.URL.Query().Get("q"),
			r.Header.Get("X-In"),
			r.Host,
		}
		_, _ = w.Write([]byte(strings.Join(parts, "|")))
	})

	req := NewRequest(http.MethodPost, "/echo?q=golang&page=1", `{"cmd":"ping"}`)
	req.Header.Set("X-In", "inbound")
	req.URL.Port = 8080

	out := Invoke(t, rt, context.Background(), req, nil)
	assert.Equal(t, `{"cmd":"ping"}|golang|inbound|example.com:8080`, out.Body(t))
}

func testCookies(t *testing.T, rt router.Router) {
	rt.GET("/login", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: "theme", Value: "dark", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/login", ""), nil)
	require.NoError(t, out.Err)

	byName := map[string]*engine.Cookie{}
	for _, c := range out.Context.Response.Cookies {
		byName[c.Name] = c
	}
	require.Len(t, byName, 2)
	assert.Equal(t, "abc", byName["session"].Value)
	assert.True(t, byName["session"].HTTPOnly)
	assert.Equal(t, "dark", byName["theme"].Value)
	_, leaked := out.Context.Response.Headers["Set-Cookie"]
	assert.False(t, leaked, "Set-Cookie must only surface as cookies")
}

func testOrderedChunks(t *testing.T, rt router.Router) {
	rt.GET("/chunks", func(w http.ResponseWriter, _ *http.Request) {
		for _, c := range []string{"first,", "second,", "third"} {
			_, _ = w.Write([]byte(c))
		}
	})

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/chunks", ""), nil)
	assert.Equal(t, "first,second,third", out.Body(t))
}

func testNotFound(t *testing.T, rt router.Router) {
	rt.GET("/exists", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/missing", ""), nil)
	require.NoError(t, out.Err)
	assert.Equal(t, http.StatusNotFound, out.Context.Response.StatusCode)
}

func testPreRequestItems(t *testing.T, rt router.Router) {
	rt.GET("/items", func(w http.ResponseWriter, r *http.Request) {
		c, ok := EngineContext(r)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		greeting, _ := c.Items["greeting"].(string)
		_, _ = w.Write([]byte(greeting))
	})

	pre := func(c *engine.Context) *engine.Context {
		c.Items["greeting"] = "hello from the host"
		return c
	}

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/items", ""), pre)
	assert.Equal(t, "hello from the host", out.Body(t))
}

func testMiddlewareOrder(t *testing.T, rt router.Router) {
	var mu sync.Mutex
	order := ""
	mw := func(tag string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				order += "(" + tag
				mu.Unlock()
				next.ServeHTTP(w, r)
				mu.Lock()
				order += tag + ")"
				mu.Unlock()
			})
		}
	}

	rt.Use(mw("1"))
	rt.GET("/onion", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		order += "X"
		mu.Unlock()
	}, mw("2"))

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/onion", ""), nil)
	require.NoError(t, out.Err)
	assert.Equal(t, "(1(2X2)1)", order)
}

func testCustomMethods(t *testing.T, rt router.Router) {
	rt.Handle("PURGE", "/cache", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("purged"))
	}))

	out := Invoke(t, rt, context.Background(), NewRequest("PURGE", "/cache", ""), nil)
	assert.Equal(t, "purged", out.Body(t))
}

func testPanic(t *testing.T, rt router.Router) {
	rt.GET("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	out := Invoke(t, rt, context.Background(), NewRequest(http.MethodGet, "/boom", ""), nil)
	if out.Err != nil {
		assert.ErrorIs(t, out.Err, engine.ErrPanic)
		return
	}
	// Frameworks with built-in recovery answer 500 themselves.
	assert.Equal(t, http.StatusInternalServerError, out.Context.Response.StatusCode)
}

func testCancelled(t *testing.T, rt router.Router) {
	reached := false
	rt.GET("/slow", func(http.ResponseWriter, *http.Request) {
		reached = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := Invoke(t, rt, ctx, NewRequest(http.MethodGet, "/slow", ""), nil)
	assert.True(t, errors.Is(out.Err, context.Canceled))
	assert.False(t, reached)
}

func testConcurrency(t *testing.T, rt router.Router) {
	rt.GET("/worker/:id", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rt.Param(r, "id")))
	})

	results := make(chan bool, count)
	for i := range count {
		go func(val string) {
			rt.HandleRequest(context.Background(), NewRequest(http.MethodGet, "/worker/"+val, ""), nil,
				func(c *engine.Context) {
					var sb strings.Builder
					_ = c.Response.Contents(&sb)
					results <- sb.String() == val && c.Parameters["id"] == val
				},
				func(error) { results <- false },
			)
		}(string(rune(i + firstLetterRune)))
	}

	for range count {
		if !<-results {
			t.Error("Concurrency security failure: parameters leaked between parallel requests")
			break
		}
	}
}
