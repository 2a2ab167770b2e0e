package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/bundlesync/internal/bundle"
	"github.com/syntrixbase/bundlesync/internal/config"
	"github.com/syntrixbase/bundlesync/internal/events"
	"github.com/syntrixbase/bundlesync/internal/reconciler"
	"github.com/syntrixbase/bundlesync/internal/stream"
)

func testConfig(backendURL string) *config.Config {
	cfg := config.Default()
	cfg.Backend.BaseURL = backendURL
	cfg.Backend.RetryBaseDelay = time.Millisecond
	cfg.Backend.RetryMaxDelay = time.Millisecond
	cfg.Stream.Kind = stream.KindNone
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

func backendServer(t *testing.T, available *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if available != nil && !available.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/api/bundles":
			_, _ = w.Write([]byte(`[{"id":"b1","dblId":"d1","revision":"1","mode":"store","name":"Genesis Audio"}]`))
		case "/api/bundles/b1":
			_, _ = w.Write([]byte(`{"id":"b1","dblId":"d1","revision":"1","mode":"store","name":"Genesis Audio"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func startManager(t *testing.T, cfg *config.Config, opts Options) *Manager {
	t.Helper()
	mgr := NewManager(cfg, opts)
	require.NoError(t, mgr.Init(context.Background()))
	require.NoError(t, mgr.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		mgr.Shutdown(ctx)
	})
	return mgr
}

func serverURL(t *testing.T, mgr *Manager) string {
	t.Helper()
	var addr string
	require.Eventually(t, func() bool {
		addr = mgr.Server().Addr()
		return addr != ""
	}, 2*time.Second, 10*time.Millisecond)
	return "http://" + addr
}

func getRow(t *testing.T, url string) (reconciler.Row, int) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var row reconciler.Row
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&row))
	}
	return row, resp.StatusCode
}

func TestManager_EndToEnd(t *testing.T) {
	src := stream.NewMemorySource(8)
	mgr := startManager(t, testConfig(backendServer(t, nil).URL), Options{Source: src})
	base := serverURL(t, mgr)

	row, status := getRow(t, base+"/v1/bundles/b1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, bundle.StatusNotStarted, row.Record.Status)

	require.NoError(t, src.Publish(context.Background(), string(events.TopicDownloadStatus), []byte(`{"args":["b1",4,8]}`)))
	assert.Eventually(t, func() bool {
		row, status := getRow(t, base+"/v1/bundles/b1")
		return status == http.StatusOK && row.Record.Progress != nil && *row.Record.Progress == 50
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "go_goroutines")
	assert.Contains(t, string(body), fmt.Sprintf(`topic=%q`, events.TopicDownloadStatus))
}

func TestManager_InitialLoadFailureIsNotFatal(t *testing.T) {
	var available atomic.Bool
	src := stream.NewMemorySource(8)
	cfg := testConfig(backendServer(t, &available).URL)
	cfg.Backend.MaxRetries = 0
	mgr := startManager(t, cfg, Options{Source: src})
	base := serverURL(t, mgr)

	_, status := getRow(t, base+"/v1/bundles/b1")
	assert.Equal(t, http.StatusNotFound, status)

	available.Store(true)
	resp, err := http.Post(base+"/v1/bundles/b1/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, status = getRow(t, base+"/v1/bundles/b1")
	assert.Equal(t, http.StatusOK, status)
}

func TestManager_ServerDisabled(t *testing.T) {
	cfg := testConfig(backendServer(t, nil).URL)
	cfg.Server.Enabled = false
	mgr := startManager(t, cfg, Options{})

	assert.Nil(t, mgr.Server())
	assert.Equal(t, 1, len(mgr.Reconciler().View(true)))
	assert.NotNil(t, mgr.Registry())
}

func TestManager_InitErrors(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Stream.Kind = "pigeon"
	mgr := NewManager(cfg, Options{})
	assert.Error(t, mgr.Init(context.Background()))
}

func TestManager_StartBeforeInit(t *testing.T) {
	mgr := NewManager(config.Default(), Options{})
	assert.True(t, errors.Is(mgr.Start(context.Background()), errNotInitialized))

	// shutdown of an unstarted manager is a no-op
	mgr.Shutdown(context.Background())
}
