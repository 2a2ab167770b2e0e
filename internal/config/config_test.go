package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/bundlesync/internal/stream"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:44151", cfg.Backend.BaseURL)
	assert.Equal(t, stream.KindWebsocket, cfg.Stream.Kind)
	assert.Equal(t, 200, cfg.Search.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.SweepInterval)
	assert.Equal(t, "session", cfg.Reconciler.SessionPrefix)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "logs", cfg.Logging.Dir)
}

func TestLoadConfig_FileAndLocalOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	writeFile(t, filepath.Join(dir, "config", "config.yml"), `
backend:
  base_url: "http://tasks:9000"
  max_retries: 5
stream:
  kind: nats
  url: "nats://events:4222"
search:
  batch_size: 50
  qps_limit: 10
reconciler:
  sweep_interval: 5s
server:
  enabled: false
logging:
  level: debug
`)
	writeFile(t, filepath.Join(dir, "config", "config.local.yml"), `
backend:
  max_retries: 1
`)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://tasks:9000", cfg.Backend.BaseURL)
	assert.Equal(t, 1, cfg.Backend.MaxRetries, "local file wins")
	assert.Equal(t, stream.KindNATS, cfg.Stream.Kind)
	assert.Equal(t, "nats://events:4222", cfg.Stream.URL)
	assert.NotEmpty(t, cfg.Stream.Subjects)
	assert.Equal(t, 50, cfg.Search.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Reconciler.SweepInterval)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "logs", cfg.Logging.Dir)
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	writeFile(t, path, "reconciler:\n  session_prefix: tmp\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tmp", cfg.Reconciler.SessionPrefix)

	_, err = LoadConfig(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestLoadConfig_EnvVars(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BUNDLESYNC_BACKEND_URL", "http://env:1")
	t.Setenv("BUNDLESYNC_BACKEND_TOKEN", "secret")
	t.Setenv("BUNDLESYNC_STREAM_KIND", "none")
	t.Setenv("BUNDLESYNC_SERVER_PORT", "9999")
	t.Setenv("BUNDLESYNC_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://env:1", cfg.Backend.BaseURL)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, stream.KindNone, cfg.Stream.Kind)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "warn", cfg.Logging.Console.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "backend: [valid"},
		{"invalid section", "stream:\n  kind: pigeon\n"},
		{"invalid log level", "logging:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			writeFile(t, path, tt.content)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoggingConfig(t *testing.T) {
	t.Run("apply defaults", func(t *testing.T) {
		cfg := &LoggingConfig{}
		cfg.ApplyDefaults()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, "text", cfg.Format)
		assert.True(t, cfg.Console.Enabled)
		assert.True(t, cfg.File.Enabled)
		assert.Equal(t, 100, cfg.Dedup.BatchSize)
		assert.False(t, cfg.Dedup.Enabled)
	})
	t.Run("overrides inherit top level", func(t *testing.T) {
		cfg := &LoggingConfig{Level: "debug", Format: "json"}
		cfg.ApplyDefaults()
		assert.Equal(t, "debug", cfg.Console.Level)
		assert.Equal(t, "json", cfg.File.Format)
	})
	t.Run("resolve paths", func(t *testing.T) {
		tests := []struct {
			dir  string
			want string
		}{
			{"logs", filepath.Join("base", "logs")},
			{"../var/logs", filepath.Join("base", "var", "logs")},
			{"/abs/logs", "/abs/logs"},
		}
		for _, tt := range tests {
			cfg := LoggingConfig{Dir: tt.dir}
			cfg.ResolvePaths(filepath.Join("base", "config"))
			assert.Equal(t, tt.want, cfg.Dir)
		}
	})
	t.Run("validate", func(t *testing.T) {
		cfg := DefaultLoggingConfig()
		assert.NoError(t, cfg.Validate())

		bad := DefaultLoggingConfig()
		bad.Console.Format = "xml"
		assert.Error(t, bad.Validate())

		bad = DefaultLoggingConfig()
		bad.Dedup.BatchSize = 0
		assert.Error(t, bad.Validate())
	})
}
