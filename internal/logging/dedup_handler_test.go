package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeBuffer is a bytes.Buffer safe for the flush goroutine and the test.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newDedup returns a handler that only flushes when asked.
func newDedup(t *testing.T, batch int) (*DedupHandler, *safeBuffer) {
	t.Helper()
	buf := &safeBuffer{}
	dh := NewDedupHandlerWithConfig(slog.NewTextHandler(buf, nil), DedupHandlerConfig{
		BatchSize:    batch,
		FlushTimeout: time.Hour,
	})
	t.Cleanup(func() { _ = dh.Close() })
	return dh, buf
}

func TestDedupHandler_CollapsesDuplicates(t *testing.T) {
	dh, buf := newDedup(t, 100)
	logger := slog.New(dh)

	for i := 0; i < 5; i++ {
		logger.Info("fetch failed", "bundle", "b1")
	}
	logger.Info("fetch failed", "bundle", "b2")
	require.NoError(t, dh.Flush())

	content := buf.String()
	assert.Equal(t, 2, strings.Count(content, "fetch failed"))
	assert.Contains(t, content, "bundle=b1 repeated_count=5")
	assert.NotContains(t, content, "bundle=b2 repeated_count")
}

func TestDedupHandler_Distinguishes(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *slog.Logger)
	}{
		{"levels", func(l *slog.Logger) {
			l.Info("same")
			l.Warn("same")
		}},
		{"preset attrs", func(l *slog.Logger) {
			l.With("component", "cache").Info("same")
			l.With("component", "search").Info("same")
		}},
		{"groups", func(l *slog.Logger) {
			l.WithGroup("stream").Info("same")
			l.WithGroup("server").Info("same")
		}},
		{"scoped and unscoped", func(l *slog.Logger) {
			l.Info("same")
			l.With("component", "cache").Info("same")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dh, buf := newDedup(t, 100)
			tt.log(slog.New(dh))
			require.NoError(t, dh.Flush())

			content := buf.String()
			assert.Equal(t, 2, strings.Count(content, "msg=same"))
			assert.NotContains(t, content, "repeated_count")
		})
	}
}

func TestDedupHandler_DerivedHandlersShareWindow(t *testing.T) {
	dh, buf := newDedup(t, 100)
	logger := slog.New(dh).With("component", "cache")

	logger.Info("miss")
	slog.New(dh).With("component", "cache").Info("miss")
	require.NoError(t, dh.Flush())

	content := buf.String()
	assert.Equal(t, 1, strings.Count(content, "msg=miss"))
	assert.Contains(t, content, "component=cache")
	assert.Contains(t, content, "repeated_count=2")
}

func TestDedupHandler_BatchFlush(t *testing.T) {
	dh, buf := newDedup(t, 3)
	logger := slog.New(dh)

	logger.Info("message", "num", 1)
	logger.Info("message", "num", 2)
	assert.Empty(t, buf.String())

	logger.Info("message", "num", 3)
	assert.Equal(t, 3, strings.Count(buf.String(), "msg=message"), "full batch is written synchronously")
}

func TestDedupHandler_TimedFlush(t *testing.T) {
	buf := &safeBuffer{}
	dh := NewDedupHandlerWithConfig(slog.NewTextHandler(buf, nil), DedupHandlerConfig{
		BatchSize:    100,
		FlushTimeout: 10 * time.Millisecond,
	})
	defer dh.Close()

	slog.New(dh).Info("tick")
	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "msg=tick")
	}, time.Second, 5*time.Millisecond)
}

func TestDedupHandler_ConcurrentWrites(t *testing.T) {
	dh, buf := newDedup(t, 1000)
	logger := slog.New(dh)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info("concurrent", "id", id)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, dh.Flush())

	content := buf.String()
	assert.Equal(t, 10, strings.Count(content, "msg=concurrent"))
	assert.Equal(t, 10, strings.Count(content, "repeated_count=50"))
}

func TestDedupHandler_Close(t *testing.T) {
	buf := &safeBuffer{}
	dh := NewDedupHandlerWithConfig(slog.NewTextHandler(buf, nil), DedupHandlerConfig{
		BatchSize:    100,
		FlushTimeout: time.Hour,
	})
	logger := slog.New(dh)

	logger.Info("pending")
	require.NoError(t, dh.Close())
	assert.Contains(t, buf.String(), "msg=pending")

	logger.Info("after close")
	assert.Contains(t, buf.String(), "msg=\"after close\"", "closed handler writes through")

	assert.NoError(t, dh.Close())
}

func TestDedupHandler_Enabled(t *testing.T) {
	base := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	dh := NewDedupHandler(base)
	defer dh.Close()

	assert.False(t, dh.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, dh.Enabled(context.Background(), slog.LevelWarn))
	assert.Same(t, dh, dh.WithAttrs(nil))
	assert.Same(t, dh, dh.WithGroup(""))
}

func TestNewDedupHandlerWithConfig_Defaults(t *testing.T) {
	dh := NewDedupHandlerWithConfig(slog.NewTextHandler(&bytes.Buffer{}, nil), DedupHandlerConfig{})
	defer dh.Close()
	assert.Equal(t, DefaultDedupHandlerConfig().BatchSize, dh.state.batchSize)
}
