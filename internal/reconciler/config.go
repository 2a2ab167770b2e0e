package reconciler

import (
	"fmt"
	"time"
)

// Config holds orchestrator configuration.
type Config struct {
	// SweepInterval is the period of the pruning sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// MaxConcurrentFetches bounds in-flight event-triggered fetches.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches"`
	// SessionPrefix marks transient bundle ids whose mode changes are ignored.
	// Empty disables the filter.
	SessionPrefix string `yaml:"session_prefix"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		SweepInterval:        30 * time.Second,
		MaxConcurrentFetches: 8,
		SessionPrefix:        "session",
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.SweepInterval == 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.MaxConcurrentFetches == 0 {
		c.MaxConcurrentFetches = defaults.MaxConcurrentFetches
	}
}

// ApplyEnvOverrides is a no-op; the orchestrator has no environment overrides.
func (c *Config) ApplyEnvOverrides() {}

// ResolvePaths is a no-op; the orchestrator has no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SweepInterval <= 0 {
		return fmt.Errorf("reconciler.sweep_interval must be positive")
	}
	if c.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("reconciler.max_concurrent_fetches must be positive")
	}
	return nil
}
