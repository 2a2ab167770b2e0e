package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/syntrixbase/bundlesync/internal/backend"
	"github.com/syntrixbase/bundlesync/internal/cache"
	"github.com/syntrixbase/bundlesync/internal/metrics"
	"github.com/syntrixbase/bundlesync/internal/reconciler"
	"github.com/syntrixbase/bundlesync/internal/search"
	"github.com/syntrixbase/bundlesync/internal/server"
	"github.com/syntrixbase/bundlesync/internal/stream"
)

// Init builds every component. Nothing runs until Start.
func (m *Manager) Init(ctx context.Context) error {
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics, err := metrics.NewPrometheus(m.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	m.client = m.opts.Client
	if m.client == nil {
		m.client = backend.NewHTTPClient(m.cfg.Backend, nil, m.logger)
	}

	m.cache = cache.New(m.client, cache.Config{
		MaxConcurrentFetches: m.cfg.Reconciler.MaxConcurrentFetches,
	}, m.logger)
	m.index = search.New(m.cache, m.cfg.Search, m.logger)
	m.reconciler = reconciler.New(m.cfg.Reconciler, m.cache, m.index, promMetrics, m.logger)

	errLogger := m.logger.With("component", "fetch")
	m.reconciler.SetFetchErrorHandler(func(id string, err error) {
		errLogger.Warn("Bundle fetch failed", "bundle", id, "transient", backend.IsTransient(err), "error", err)
	})

	if err := m.initSource(); err != nil {
		return err
	}

	if m.cfg.Server.Enabled {
		m.server = server.New(m.cfg.Server, m.logger)
		server.NewHandler(m.reconciler, m.registry).Register(m.server)
	}

	m.logger.Info("Services initialized",
		"backend", m.cfg.Backend.BaseURL,
		"stream", m.cfg.Stream.Kind,
		"server_enabled", m.cfg.Server.Enabled,
	)
	return nil
}

func (m *Manager) initSource() error {
	if m.opts.Source != nil {
		m.source = m.opts.Source
		return nil
	}
	src, err := stream.New(m.cfg.Stream, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create event stream: %w", err)
	}
	m.source = src
	return nil
}
