package ginadapter_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaconlabs/owinbridge"
	"github.com/iaconlabs/owinbridge/adapter/ginadapter"
	"github.com/iaconlabs/owinbridge/hosting"
	"github.com/iaconlabs/owinbridge/server"
)

func TestGinAdapter_FullStack_SmokeTest(t *testing.T) {
	rt := ginadapter.NewGinAdapter()
	rt.GET("/api/v1/users/:id.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Backend", "gin")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","id":"` + rt.Param(r, "id") + `"}`))
	})

	bridge, err := owinbridge.New(rt, owinbridge.Options{})
	require.NoError(t, err)

	srv := server.New(server.Config{Addr: "127.0.0.1:0"}, hosting.NewHandler(bridge.Invoke, hosting.Options{}))

	srvErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	go func() {
		srvErr <- srv.Start(serverCtx)
	}()

	addr := srv.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/v1/users/admin.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"status":"ok","id":"admin.json"}`, string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "gin", resp.Header.Get("X-Backend"))

	missing, err := client.Get("http://" + addr + "/api/v1/nothing-here")
	require.NoError(t, err)
	_ = missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-srvErr:
		assert.NoError(t, err)
	case <-time.After(1 * time.Second):
		t.Error("server did not stop in time")
	}
}
