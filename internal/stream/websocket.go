package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Maximum frame size accepted from the task service.
	maxFrameSize = 1 << 20

	handshakeTimeout = 10 * time.Second
)

// frame is one websocket message. Data is either a JSON string holding the
// payload text or the payload object itself.
type frame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// decodeFrame returns the topic and raw payload carried by msg.
func decodeFrame(msg []byte) (string, []byte, error) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return "", nil, fmt.Errorf("invalid frame: %w", err)
	}
	if f.Topic == "" {
		return "", nil, fmt.Errorf("invalid frame: missing topic")
	}
	data := bytes.TrimSpace(f.Data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", nil, fmt.Errorf("invalid frame data: %w", err)
		}
		return f.Topic, []byte(s), nil
	}
	return f.Topic, data, nil
}

// WebsocketSource reads events from the task service event socket.
type WebsocketSource struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
	state  atomic.Int32
}

// NewWebsocketSource creates a source dialing cfg.URL.
func NewWebsocketSource(cfg Config, logger *slog.Logger) *WebsocketSource {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketSource{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
		logger: logger.With("component", "stream", "transport", KindWebsocket),
	}
}

// State returns the connection state.
func (s *WebsocketSource) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

func (s *WebsocketSource) setState(state ConnectionState) {
	old := ConnectionState(s.state.Swap(int32(state)))
	if old != state {
		s.logger.Info("Connection state changed", "from", old.String(), "to", state.String())
	}
}

// Run connects and delivers frames until ctx is canceled.
func (s *WebsocketSource) Run(ctx context.Context, handler Handler) error {
	defer s.setState(StateDisconnected)

	bo := newBackoff(s.cfg)
	attempts := 0
	for {
		if attempts == 0 {
			s.setState(StateConnecting)
		} else {
			s.setState(StateReconnecting)
		}
		attempts++

		conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Connect failed", "url", s.cfg.URL, "attempt", attempts, "error", err)
			if !sleep(ctx, bo.Next()) {
				return nil
			}
			continue
		}

		bo.Reset()
		s.setState(StateConnected)
		err = s.read(ctx, conn, handler)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("Connection lost", "error", err)
		if !sleep(ctx, bo.Next()) {
			return nil
		}
	}
}

// read delivers frames from conn until it fails or ctx is done.
func (s *WebsocketSource) read(ctx context.Context, conn *websocket.Conn, handler Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	conn.SetReadLimit(maxFrameSize)
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		topic, payload, err := decodeFrame(msg)
		if err != nil {
			s.logger.Warn("Dropping frame", "error", err)
			continue
		}
		handler(ctx, topic, payload)
	}
}
