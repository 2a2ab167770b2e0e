package search

import "fmt"

// Config controls full rebuilds.
type Config struct {
	// BatchSize is the number of records evaluated between throttle waits.
	BatchSize int `yaml:"batch_size"`
	// QPSLimit caps records evaluated per second. Zero disables throttling.
	QPSLimit int `yaml:"qps_limit"`
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize: 200,
		QPSLimit:  0,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultConfig().BatchSize
	}
}

// ApplyEnvOverrides is a no-op; search has no environment overrides.
func (c *Config) ApplyEnvOverrides() {}

// ResolvePaths is a no-op; search has no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("search.batch_size must be positive")
	}
	if c.QPSLimit < 0 {
		return fmt.Errorf("search.qps_limit must be non-negative")
	}
	return nil
}
