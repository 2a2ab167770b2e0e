package logging

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DedupHandler collapses identical records logged within one flush window
// into a single record carrying a repeated_count attribute. Records are
// compared by level, message and attributes, never by timestamp. Handlers
// derived through WithAttrs or WithGroup share the same window but keep
// their own scope, so the same message from two components stays distinct.
type DedupHandler struct {
	handler slog.Handler
	scope   uint64
	state   *dedupState
}

// DedupHandlerConfig holds configuration for DedupHandler
type DedupHandlerConfig struct {
	// BatchSize is the number of unique entries held before a flush.
	BatchSize int
	// FlushTimeout bounds how long an entry is held.
	FlushTimeout time.Duration
}

// DefaultDedupHandlerConfig returns default configuration
func DefaultDedupHandlerConfig() DedupHandlerConfig {
	return DedupHandlerConfig{
		BatchSize:    100,
		FlushTimeout: time.Second,
	}
}

type dedupEntry struct {
	handler slog.Handler
	record  slog.Record
	count   int
}

type dedupState struct {
	mu        sync.Mutex
	entries   map[uint64]*dedupEntry
	order     []uint64
	batchSize int
	closed    bool

	ticker    *time.Ticker
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDedupHandler creates a new deduplicating handler with default config
func NewDedupHandler(handler slog.Handler) *DedupHandler {
	return NewDedupHandlerWithConfig(handler, DefaultDedupHandlerConfig())
}

// NewDedupHandlerWithConfig creates a new deduplicating handler with custom config
func NewDedupHandlerWithConfig(handler slog.Handler, cfg DedupHandlerConfig) *DedupHandler {
	def := DefaultDedupHandlerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	state := &dedupState{
		entries:   make(map[uint64]*dedupEntry),
		order:     make([]uint64, 0, cfg.BatchSize),
		batchSize: cfg.BatchSize,
		ticker:    time.NewTicker(cfg.FlushTimeout),
		stop:      make(chan struct{}),
	}
	state.wg.Add(1)
	go state.flushLoop()

	return &DedupHandler{handler: handler, state: state}
}

// Enabled reports whether the handler handles records at the given level.
func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle buffers r, or bumps the count of an identical buffered record.
// Once the handler is closed records pass straight through.
func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	key := h.key(r)

	s := h.state
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return h.handler.Handle(ctx, r)
	}
	if entry, ok := s.entries[key]; ok {
		entry.count++
		s.mu.Unlock()
		return nil
	}
	s.entries[key] = &dedupEntry{handler: h.handler, record: r.Clone(), count: 1}
	s.order = append(s.order, key)
	var batch []*dedupEntry
	if len(s.order) >= s.batchSize {
		batch = s.drainLocked()
	}
	s.mu.Unlock()

	return emit(batch)
}

// WithAttrs returns a handler whose records are deduplicated apart from
// records without attrs.
func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	d := xxhash.New()
	writeUint64(d, h.scope)
	for _, a := range attrs {
		_, _ = d.WriteString(a.String())
		_, _ = d.Write([]byte{0})
	}
	return &DedupHandler{handler: h.handler.WithAttrs(attrs), scope: d.Sum64(), state: h.state}
}

// WithGroup returns a handler scoped to the named group.
func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	d := xxhash.New()
	writeUint64(d, h.scope)
	_, _ = d.WriteString("group:" + name)
	return &DedupHandler{handler: h.handler.WithGroup(name), scope: d.Sum64(), state: h.state}
}

// Flush writes every buffered record now.
func (h *DedupHandler) Flush() error {
	h.state.mu.Lock()
	batch := h.state.drainLocked()
	h.state.mu.Unlock()
	return emit(batch)
}

// Close stops the flush loop and writes what is left. It is safe to call
// more than once, from any handler sharing the window.
func (h *DedupHandler) Close() error {
	var err error
	h.state.closeOnce.Do(func() {
		close(h.state.stop)
		h.state.wg.Wait()
		h.state.ticker.Stop()

		h.state.mu.Lock()
		h.state.closed = true
		batch := h.state.drainLocked()
		h.state.mu.Unlock()
		err = emit(batch)
	})
	return err
}

func (h *DedupHandler) key(r slog.Record) uint64 {
	d := xxhash.New()
	writeUint64(d, h.scope)
	writeUint64(d, uint64(int64(r.Level)))
	_, _ = d.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(a.String())
		return true
	})
	return d.Sum64()
}

func (s *dedupState) flushLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			batch := s.drainLocked()
			s.mu.Unlock()
			_ = emit(batch)
		case <-s.stop:
			return
		}
	}
}

// drainLocked empties the window in arrival order. Callers hold s.mu.
func (s *dedupState) drainLocked() []*dedupEntry {
	if len(s.order) == 0 {
		return nil
	}
	batch := make([]*dedupEntry, 0, len(s.order))
	for _, key := range s.order {
		batch = append(batch, s.entries[key])
	}
	s.entries = make(map[uint64]*dedupEntry, s.batchSize)
	s.order = s.order[:0]
	return batch
}

func emit(batch []*dedupEntry) error {
	var firstErr error
	for _, entry := range batch {
		r := entry.record
		if entry.count > 1 {
			r = r.Clone()
			r.AddAttrs(slog.Int("repeated_count", entry.count))
		}
		if err := entry.handler.Handle(context.Background(), r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeUint64(d *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = d.Write(buf[:])
}
