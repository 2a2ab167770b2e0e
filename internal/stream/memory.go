package stream

import (
	"context"
	"sync/atomic"
)

// Message is a raw event fed to a MemorySource.
type Message struct {
	Topic   string
	Payload []byte
}

// MemorySource delivers events published in-process. It is used by tests
// and when no transport is configured.
type MemorySource struct {
	ch    chan Message
	state atomic.Int32
}

// NewMemorySource creates a source buffering up to size messages.
func NewMemorySource(size int) *MemorySource {
	return &MemorySource{ch: make(chan Message, size)}
}

// Publish queues a message, blocking while the buffer is full or until ctx
// is done.
func (s *MemorySource) Publish(ctx context.Context, topic string, payload []byte) error {
	select {
	case s.ch <- Message{Topic: topic, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns StateConnected while Run is active.
func (s *MemorySource) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// Run delivers published messages until ctx is canceled.
func (s *MemorySource) Run(ctx context.Context, handler Handler) error {
	s.state.Store(int32(StateConnected))
	defer s.state.Store(int32(StateDisconnected))
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-s.ch:
			handler(ctx, m.Topic, m.Payload)
		}
	}
}
