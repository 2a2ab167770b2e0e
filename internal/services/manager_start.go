package services

import (
	"context"
	"errors"
)

var errNotInitialized = errors.New("services not initialized")

// Start loads the initial bundle listing and starts the sweep loop, the
// event stream and the HTTP server. A failed initial load is logged and
// left to later events and refreshes to repair.
func (m *Manager) Start(bgCtx context.Context) error {
	if m.reconciler == nil {
		return errNotInitialized
	}

	runCtx, cancel := context.WithCancel(bgCtx)
	m.cancel = cancel

	if err := m.reconciler.LoadAll(runCtx); err != nil {
		m.logger.Error("Initial bundle load failed", "error", err)
	}

	if err := m.reconciler.Start(runCtx); err != nil {
		cancel()
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.source.Run(runCtx, m.reconciler.HandleRaw); err != nil {
			m.logger.Error("Event stream stopped", "error", err)
		}
	}()

	if m.server != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.server.Start(runCtx); err != nil {
				m.logger.Error("HTTP server stopped", "error", err)
			}
		}()
	}
	return nil
}
