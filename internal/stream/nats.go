package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

// natsConn is the part of *nats.Conn used by NATSSource.
type natsConn interface {
	ChanSubscribe(subj string, ch chan *nats.Msg) (*nats.Subscription, error)
	Close()
}

// natsConnectFunc allows test injection.
var natsConnectFunc = func(url string, opts ...nats.Option) (natsConn, error) {
	return nats.Connect(url, opts...)
}

// msgBuffer bounds messages received but not yet handled.
const msgBuffer = 256

// NATSSource receives events over core NATS subscriptions. Delivery is at
// most once; the client library handles reconnects.
type NATSSource struct {
	cfg    Config
	logger *slog.Logger
	state  atomic.Int32
}

// NewNATSSource creates a source for cfg.URL and cfg.Subjects.
func NewNATSSource(cfg Config, logger *slog.Logger) *NATSSource {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSource{
		cfg:    cfg,
		logger: logger.With("component", "stream", "transport", KindNATS),
	}
}

// State returns the connection state.
func (s *NATSSource) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

func (s *NATSSource) setState(state ConnectionState) {
	old := ConnectionState(s.state.Swap(int32(state)))
	if old != state {
		s.logger.Info("Connection state changed", "from", old.String(), "to", state.String())
	}
}

func (s *NATSSource) options() []nats.Option {
	return []nats.Option{
		nats.Name("bundlesync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.cfg.ReconnectDelay),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.setState(StateReconnecting)
			if err != nil {
				s.logger.Warn("Disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			s.setState(StateConnected)
		}),
	}
}

// Run subscribes to every configured subject and delivers messages in
// arrival order until ctx is canceled.
func (s *NATSSource) Run(ctx context.Context, handler Handler) error {
	s.setState(StateConnecting)
	defer s.setState(StateDisconnected)

	nc, err := natsConnectFunc(s.cfg.URL, s.options()...)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, msgBuffer)
	for _, subj := range s.cfg.Subjects {
		if _, err := nc.ChanSubscribe(subj, msgs); err != nil {
			return fmt.Errorf("subscribe %s: %w", subj, err)
		}
	}
	s.setState(StateConnected)
	s.logger.Info("Subscribed", "subjects", len(s.cfg.Subjects))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			handler(ctx, TopicForSubject(msg.Subject), msg.Data)
		}
	}
}
