// Package services assembles the engine: backend client, bundle cache,
// search index, reconciler, event stream and HTTP server.
package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/syntrixbase/bundlesync/internal/backend"
	"github.com/syntrixbase/bundlesync/internal/cache"
	"github.com/syntrixbase/bundlesync/internal/config"
	"github.com/syntrixbase/bundlesync/internal/reconciler"
	"github.com/syntrixbase/bundlesync/internal/search"
	"github.com/syntrixbase/bundlesync/internal/server"
	"github.com/syntrixbase/bundlesync/internal/stream"
)

// Options override parts of the assembled engine.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Source replaces the stream transport built from configuration.
	Source stream.Source
	// Client replaces the HTTP backend client.
	Client backend.Client
}

// Manager owns the engine components and their lifecycle.
type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	registry   *prometheus.Registry
	client     backend.Client
	cache      *cache.Cache
	index      *search.Index
	reconciler *reconciler.Orchestrator
	source     stream.Source
	server     server.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg *config.Config, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
	}
}

// Reconciler returns the orchestrator, or nil before Init.
func (m *Manager) Reconciler() *reconciler.Orchestrator {
	return m.reconciler
}

// Registry returns the metrics registry, or nil before Init.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Server returns the HTTP service, or nil when it is disabled.
func (m *Manager) Server() server.Service {
	return m.server
}
