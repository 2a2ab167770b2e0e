package stream

import (
	"fmt"
	"os"
	"time"

	"github.com/syntrixbase/bundlesync/internal/events"
)

// Transport kinds.
const (
	KindWebsocket = "websocket"
	KindNATS      = "nats"
	KindNone      = "none"
)

// Config selects and configures the event stream transport.
type Config struct {
	// Kind is one of websocket, nats or none.
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
	// Subjects are the NATS subjects to subscribe to. Defaults to every
	// known topic.
	Subjects []string `yaml:"subjects"`

	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		Kind:              KindWebsocket,
		URL:               "ws://127.0.0.1:44151/events",
		Subjects:          defaultSubjects(),
		ReconnectDelay:    500 * time.Millisecond,
		MaxReconnectDelay: 30 * time.Second,
	}
}

func defaultSubjects() []string {
	out := make([]string, 0, len(events.Topics))
	for _, t := range events.Topics {
		out = append(out, SubjectForTopic(string(t)))
	}
	return out
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Kind == "" {
		c.Kind = defaults.Kind
	}
	if c.URL == "" && c.Kind == defaults.Kind {
		c.URL = defaults.URL
	}
	if len(c.Subjects) == 0 {
		c.Subjects = defaults.Subjects
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = defaults.ReconnectDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = defaults.MaxReconnectDelay
	}
}

// ApplyEnvOverrides applies BUNDLESYNC_STREAM_KIND and BUNDLESYNC_STREAM_URL.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BUNDLESYNC_STREAM_KIND"); v != "" {
		c.Kind = v
	}
	if v := os.Getenv("BUNDLESYNC_STREAM_URL"); v != "" {
		c.URL = v
	}
}

// ResolvePaths is a no-op; the stream has no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindWebsocket, KindNATS:
		if c.URL == "" {
			return fmt.Errorf("stream.url is required for kind %q", c.Kind)
		}
	case KindNone:
	default:
		return fmt.Errorf("stream.kind must be one of websocket, nats, none; got %q", c.Kind)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("stream.reconnect_delay must be positive")
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		return fmt.Errorf("stream.max_reconnect_delay must not be less than reconnect_delay")
	}
	return nil
}
