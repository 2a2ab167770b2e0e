package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`  // debug, info, warn, error
	Format   string         `yaml:"format"` // text, json
	Dir      string         `yaml:"dir"`
	Rotation RotationConfig `yaml:"rotation"`
	Console  OutputConfig   `yaml:"console"`
	File     OutputConfig   `yaml:"file"`
	Dedup    DedupConfig    `yaml:"dedup"`
}

// RotationConfig holds lumberjack rotation settings.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`
}

// OutputConfig configures one log destination. Empty level and format
// inherit the top-level values.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// DedupConfig controls collapsing of repeated log records.
type DedupConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// DefaultLoggingConfig returns default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Console: OutputConfig{Enabled: true, Level: "info", Format: "text"},
		File:    OutputConfig{Enabled: true, Level: "info", Format: "text"},
		Dedup: DedupConfig{
			Enabled:      true,
			BatchSize:    100,
			FlushTimeout: time.Second,
		},
	}
}

// ApplyDefaults fills zero values. Dedup.Enabled and Rotation.Compress are
// left alone since false is a meaningful setting.
func (c *LoggingConfig) ApplyDefaults() {
	def := DefaultLoggingConfig()
	setDefault(&c.Level, def.Level)
	setDefault(&c.Format, def.Format)
	setDefault(&c.Dir, def.Dir)

	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = def.Rotation.MaxSize
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = def.Rotation.MaxBackups
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = def.Rotation.MaxAge
	}

	c.Console.inherit(c.Level, c.Format)
	c.File.inherit(c.Level, c.Format)

	if c.Dedup.BatchSize == 0 {
		c.Dedup.BatchSize = def.Dedup.BatchSize
	}
	if c.Dedup.FlushTimeout == 0 {
		c.Dedup.FlushTimeout = def.Dedup.FlushTimeout
	}
}

// inherit enables an output that was left entirely unset and fills its
// level and format from the top-level values.
func (o *OutputConfig) inherit(level, format string) {
	if *o == (OutputConfig{}) {
		o.Enabled = true
	}
	setDefault(&o.Level, level)
	setDefault(&o.Format, format)
}

func setDefault(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

// ApplyEnvOverrides applies BUNDLESYNC_LOG_LEVEL to every output.
func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := os.Getenv("BUNDLESYNC_LOG_LEVEL"); v != "" {
		c.Level = v
		c.Console.Level = v
		c.File.Level = v
	}
}

// ResolvePaths makes Dir absolute-or-anchored. A dir starting with ".." is
// relative to configDir; any other relative dir sits next to configDir.
func (c *LoggingConfig) ResolvePaths(configDir string) {
	if c.Dir == "" || filepath.IsAbs(c.Dir) {
		return
	}
	base := filepath.Dir(configDir)
	if strings.HasPrefix(c.Dir, "..") {
		base = configDir
	}
	c.Dir = filepath.Clean(filepath.Join(base, c.Dir))
}

// Validate validates the configuration
func (c *LoggingConfig) Validate() error {
	if !slices.Contains(logLevels, c.Level) {
		return fmt.Errorf("invalid log level: %q (must be one of %s)", c.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, c.Format) {
		return fmt.Errorf("invalid log format: %q (must be one of %s)", c.Format, strings.Join(logFormats, ", "))
	}
	if c.Dir == "" {
		return fmt.Errorf("log directory cannot be empty")
	}
	if err := c.Console.validate("console"); err != nil {
		return err
	}
	if err := c.File.validate("file"); err != nil {
		return err
	}
	if c.Dedup.Enabled && (c.Dedup.BatchSize <= 0 || c.Dedup.FlushTimeout <= 0) {
		return fmt.Errorf("logging.dedup batch_size and flush_timeout must be positive")
	}
	return nil
}

func (o OutputConfig) validate(name string) error {
	if !o.Enabled {
		return nil
	}
	if o.Level != "" && !slices.Contains(logLevels, o.Level) {
		return fmt.Errorf("invalid %s log level: %q", name, o.Level)
	}
	if o.Format != "" && !slices.Contains(logFormats, o.Format) {
		return fmt.Errorf("invalid %s log format: %q", name, o.Format)
	}
	return nil
}
