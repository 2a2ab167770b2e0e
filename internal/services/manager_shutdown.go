package services

import (
	"context"
)

// Shutdown stops the stream and the server, drains in-flight fetches and
// releases the cache. It gives up waiting when ctx is done.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}

	if m.server != nil {
		m.logger.Info("Stopping HTTP server...")
		if err := m.server.Stop(ctx); err != nil {
			m.logger.Error("Error shutting down HTTP server", "error", err)
		}
	}

	if m.reconciler != nil {
		if err := m.reconciler.Stop(ctx); err != nil {
			m.logger.Error("Error stopping reconciler", "error", err)
		}
	}

	m.logger.Info("Waiting for background tasks to finish...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Background tasks finished")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
	}

	if m.cache != nil {
		m.cache.Dispose()
	}
}
