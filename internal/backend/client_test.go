package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/bundlesync/internal/bundle"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPClient(Config{
		BaseURL:        server.URL,
		Token:          "secret",
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}, server.Client(), nil)
}

func TestHTTPClient_FetchBundle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bundles/b1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Correlation-Id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bundle.Snapshot{ID: "b1", DblID: "d1", Revision: "3", Mode: "store"})
	})

	snap, err := client.FetchBundle(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "d1", snap.DblID)
	assert.Equal(t, "3", snap.Revision)
}

func TestHTTPClient_FetchAllAndManifest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bundles":
			_, _ = w.Write([]byte(`[{"id":"b1","dblId":"d1","revision":"1","mode":"store"},{"id":"b2","dblId":"d2","revision":"0","mode":"create"}]`))
		case "/api/bundles/b1/manifest":
			_, _ = w.Write([]byte(`{"resourcePaths":["a.mp3","b.mp3"]}`))
		default:
			http.NotFound(w, r)
		}
	})

	all, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b2", all[1].ID)
	assert.Nil(t, all[0].ResourceCountManifest)

	paths, err := client.FetchManifestPaths(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, paths)
}

func TestHTTPClient_NotFound(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","message":"no such bundle"}`))
	})

	_, err := client.FetchBundle(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load(), "404 is not retried")

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "not_found", httpErr.Code)
}

func TestHTTPClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"b1","revision":"1"}`))
	})

	snap, err := client.FetchBundle(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", snap.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_TransientAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchBundle(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewHTTPClient(Config{BaseURL: url, MaxRetries: 1, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond}, nil, nil)
	_, err := client.FetchBundle(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPClient_ClientErrorIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := client.FetchBundle(context.Background(), "b1")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.False(t, IsNotFound(err))
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchBundle(ctx, "b1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryDelay(t *testing.T) {
	c := &HTTPClient{baseDelay: 100 * time.Millisecond, maxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, ""))
	assert.Equal(t, 200*time.Millisecond, c.retryDelay(2, ""))
	assert.Equal(t, 400*time.Millisecond, c.retryDelay(3, ""))
	assert.Equal(t, time.Second, c.retryDelay(10, ""))
	assert.Equal(t, time.Second, c.retryDelay(1, "30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.BaseURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RetryMaxDelay = time.Millisecond
	assert.Error(t, cfg.Validate())
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("BUNDLESYNC_BACKEND_URL", "http://backend:9000")
	t.Setenv("BUNDLESYNC_BACKEND_TOKEN", "tok")
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "http://backend:9000", cfg.BaseURL)
	assert.Equal(t, "tok", cfg.Token)
}
