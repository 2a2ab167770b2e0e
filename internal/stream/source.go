// Package stream delivers task service events to a handler, one at a time
// and in arrival order, over a websocket or NATS connection.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// Handler receives one raw event.
type Handler func(ctx context.Context, topic string, payload []byte)

// Source is an event stream. Run blocks, reconnecting as needed, until ctx
// is canceled, and never calls handler concurrently.
type Source interface {
	Run(ctx context.Context, handler Handler) error
	State() ConnectionState
}

// ConnectionState is the state of a stream connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// New builds the source selected by cfg.Kind. KindNone yields a source that
// delivers nothing.
func New(cfg Config, logger *slog.Logger) (Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Kind {
	case KindWebsocket:
		return NewWebsocketSource(cfg, logger), nil
	case KindNATS:
		return NewNATSSource(cfg, logger), nil
	case KindNone:
		return NewMemorySource(0), nil
	default:
		return nil, fmt.Errorf("unknown stream kind %q", cfg.Kind)
	}
}

// SubjectForTopic maps an event topic to its NATS subject.
func SubjectForTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// TopicForSubject maps a NATS subject back to the event topic.
func TopicForSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// backoff yields reconnect delays growing from cfg.ReconnectDelay to
// cfg.MaxReconnectDelay with +/-20% jitter.
type backoff struct {
	base time.Duration
	max  time.Duration
	next time.Duration
}

func newBackoff(cfg Config) *backoff {
	return &backoff{base: cfg.ReconnectDelay, max: cfg.MaxReconnectDelay, next: cfg.ReconnectDelay}
}

func (b *backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.max)
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * jitter)
}

func (b *backoff) Reset() {
	b.next = b.base
}

// sleep waits for d or until ctx is done, reporting whether the wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
