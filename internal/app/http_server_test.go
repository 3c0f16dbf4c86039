package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/epiccart/internal/health"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().String()
}

func findFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func probe(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// startProbes поднимает сервер проб и ждёт, пока он начнёт принимать соединения.
func startProbes(t *testing.T, ctx context.Context, handler *healthcheck.Handler) string {
	t.Helper()
	addr := freeAddr(t)
	srv := startMetricsServer(ctx, addr, log.WithField("component", "probes-test"), handler)
	require.NotNil(t, srv)

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
	return base
}

func TestMetricsServer_ProbesReflectStorageHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := healthcheck.NewHandler("v-test")
	handler.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", func(context.Context) error { return nil }))
	handler.RegisterOptional("kafka", healthcheck.NewPingChecker("kafka", func(context.Context) error {
		return errors.New("no brokers")
	}))
	base := startProbes(t, ctx, handler)

	status, body := probe(t, base+"/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	status, body = probe(t, base+"/readyz")
	assert.Equal(t, http.StatusOK, status, "optional kafka failure must not block readiness")
	assert.Equal(t, "ready", body)

	status, body = probe(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	var report healthcheck.Response
	require.NoError(t, json.Unmarshal([]byte(body), &report))
	assert.Equal(t, "v-test", report.Version)
	assert.Equal(t, healthcheck.StatusDegraded, report.Status)

	status, body = probe(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsServer_NotReadyWhenDatabaseIsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := healthcheck.NewHandler("v-test")
	handler.RegisterChecker("mongo", healthcheck.NewPingChecker("mongo", func(context.Context) error {
		return errors.New("server selection timeout")
	}))
	base := startProbes(t, ctx, handler)

	status, _ := probe(t, base+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	status, _ = probe(t, base+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	status, _ = probe(t, base+"/livez")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsServer_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	base := startProbes(t, ctx, healthcheck.NewHandler("v-test"))

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return true
		}
		resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("component", "shutdown-test")
	assert.NotPanics(t, func() { shutdownHTTP(nil, logger) })

	addr := freeAddr(t)
	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), ReadHeaderTimeout: time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()

	url := fmt.Sprintf("http://%s/", addr)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	shutdownHTTP(srv, logger)
	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
