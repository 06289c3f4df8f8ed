package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urlshortener.local/internal/platform/config"
)

func TestNew_UsesConfigAndHandler(t *testing.T) {
	cfg := config.Config{
		Addr:              "127.0.0.1:0",
		AdminAddr:         "127.0.0.1:6061",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      4 * time.Second,
		IdleTimeout:       5 * time.Second,
	}
	handler := http.NewServeMux()

	srv := New(cfg, handler)
	assert.Equal(t, cfg.Addr, srv.Addr)
	assert.Same(t, handler, srv.Handler)
	assert.Equal(t, cfg.ReadHeaderTimeout, srv.ReadHeaderTimeout)
	assert.Equal(t, cfg.ReadTimeout, srv.ReadTimeout)
	assert.Equal(t, cfg.WriteTimeout, srv.WriteTimeout)
	assert.Equal(t, cfg.IdleTimeout, srv.IdleTimeout)

	admin := NewAdmin(cfg, handler)
	assert.Equal(t, cfg.AdminAddr, admin.Addr)
}

func TestServe_CancelStopsServer(t *testing.T) {
	cfg := config.Config{Addr: "127.0.0.1:0", ReadHeaderTimeout: 500 * time.Millisecond}
	srv := New(cfg, http.NewServeMux())

	stopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Serve(stopCtx, srv, 500*time.Millisecond)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func TestServe_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// 端口已被占用
	srv := New(config.Config{Addr: ln.Addr().String()}, http.NewServeMux())
	err = Serve(context.Background(), srv, time.Second)
	require.Error(t, err)
}

func TestAdminHandler(t *testing.T) {
	var readyErr error
	h := AdminHandler(BuildInfo{ServiceName: "svc", Version: "v1"}, func(context.Context) error { return readyErr }, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	readyErr = errors.New("db down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "svc", body["service_name"])
	assert.Equal(t, "v1", body["version"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
