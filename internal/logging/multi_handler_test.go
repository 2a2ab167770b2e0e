package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// stubHandler records what it was given and can be made to fail.
type stubHandler struct {
	enabled bool
	err     error
	records []slog.Record
	attrs   []slog.Attr
	groups  []string
}

func (h *stubHandler) Enabled(context.Context, slog.Level) bool { return h.enabled }

func (h *stubHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return h.err
}

func (h *stubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.attrs = append(h.attrs, attrs...)
	return h
}

func (h *stubHandler) WithGroup(name string) slog.Handler {
	h.groups = append(h.groups, name)
	return h
}

func record(msg string) slog.Record {
	return slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
}

func TestMultiHandler_Handle(t *testing.T) {
	buf1, buf2 := &bytes.Buffer{}, &bytes.Buffer{}
	multi := NewMultiHandler(
		slog.NewTextHandler(buf1, nil),
		slog.NewTextHandler(buf2, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	logger := slog.New(multi)
	logger.Info("info", "key", "value")
	logger.Error("error")

	assert.Contains(t, buf1.String(), "key=value")
	assert.Contains(t, buf1.String(), "msg=error")
	assert.NotContains(t, buf2.String(), "msg=info")
	assert.Contains(t, buf2.String(), "msg=error")
}

func TestMultiHandler_Enabled(t *testing.T) {
	ctx := context.Background()
	assert.False(t, NewMultiHandler().Enabled(ctx, slog.LevelError))
	assert.False(t, NewMultiHandler(&stubHandler{}).Enabled(ctx, slog.LevelInfo))
	assert.True(t, NewMultiHandler(&stubHandler{}, &stubHandler{enabled: true}).Enabled(ctx, slog.LevelInfo))
}

func TestMultiHandler_ErrorsDoNotStopFanOut(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	failA := &stubHandler{enabled: true, err: errA}
	ok := &stubHandler{enabled: true}
	failB := &stubHandler{enabled: true, err: errB}
	disabled := &stubHandler{}

	err := NewMultiHandler(failA, ok, disabled, failB).Handle(context.Background(), record("msg"))

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, ok.records, 1)
	assert.Len(t, failB.records, 1)
	assert.Empty(t, disabled.records)
}

func TestMultiHandler_Derive(t *testing.T) {
	a, b := &stubHandler{enabled: true}, &stubHandler{enabled: true}
	multi := NewMultiHandler(a, b)

	derived := multi.WithAttrs([]slog.Attr{slog.String("component", "cache")}).WithGroup("g")
	assert.NotSame(t, multi, derived)
	for _, h := range []*stubHandler{a, b} {
		assert.Equal(t, []slog.Attr{slog.String("component", "cache")}, h.attrs)
		assert.Equal(t, []string{"g"}, h.groups)
	}

	assert.Same(t, multi, multi.WithGroup(""))
}

func TestMultiHandler_WithGroupOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(NewMultiHandler(slog.NewTextHandler(buf, nil))).WithGroup("req").With("id", "1")
	logger.Info("done")
	assert.Contains(t, buf.String(), "req.id=1")
}
