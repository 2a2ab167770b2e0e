package backend

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds the REST client configuration.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://127.0.0.1:44151",
		Timeout:        15 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  2 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = defaults.RetryMaxDelay
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BUNDLESYNC_BACKEND_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("BUNDLESYNC_BACKEND_TOKEN"); v != "" {
		c.Token = v
	}
}

// ResolvePaths is a no-op; the backend config holds no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate checks the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute URL, got %q", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("backend.timeout must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("backend.max_retries must be non-negative")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("backend.retry_max_delay must be >= retry_base_delay")
	}
	return nil
}
