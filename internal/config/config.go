// Package config loads the engine configuration from YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/bundlesync/internal/backend"
	"github.com/syntrixbase/bundlesync/internal/reconciler"
	"github.com/syntrixbase/bundlesync/internal/search"
	"github.com/syntrixbase/bundlesync/internal/server"
	"github.com/syntrixbase/bundlesync/internal/stream"
)

// Default config file locations, relative to the working directory.
const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.yml"
	LocalConfigFile   = "config.local.yml"
)

// Config holds the application configuration
type Config struct {
	Backend    backend.Config    `yaml:"backend"`
	Stream     stream.Config     `yaml:"stream"`
	Search     search.Config     `yaml:"search"`
	Reconciler reconciler.Config `yaml:"reconciler"`
	Server     server.Config     `yaml:"server"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Backend:    backend.DefaultConfig(),
		Stream:     stream.DefaultConfig(),
		Search:     search.DefaultConfig(),
		Reconciler: reconciler.DefaultConfig(),
		Server:     server.DefaultConfig(),
		Logging:    DefaultLoggingConfig(),
	}
}

// LoadConfig loads configuration from files and environment variables.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> Validate.
//
// When path is empty, config/config.yml and config/config.local.yml are read
// if present. Otherwise path must exist, and the config.local.yml next to it
// is read if present.
func LoadConfig(path string) (*Config, error) {
	// start with defaults so YAML can override them, including bool fields
	cfg := Default()

	configDir := DefaultConfigDir
	mainFile := filepath.Join(configDir, DefaultConfigFile)
	if path != "" {
		configDir = filepath.Dir(path)
		mainFile = path
	}

	if err := loadFile(mainFile, cfg, path != ""); err != nil {
		return nil, err
	}
	if err := loadFile(filepath.Join(configDir, LocalConfigFile), cfg, false); err != nil {
		return nil, err
	}

	if err := ApplyServiceConfigs(configDir,
		&cfg.Backend,
		&cfg.Stream,
		&cfg.Search,
		&cfg.Reconciler,
		&cfg.Server,
		&cfg.Logging,
	); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// loadFile merges filename into cfg. A missing file is an error only when
// required is set.
func loadFile(filename string, cfg *Config, required bool) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	slog.Debug("Loaded config file", "file", filename)
	return nil
}
