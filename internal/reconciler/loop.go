package reconciler

import (
	"context"
	"fmt"
	"time"
)

// Start starts the sweep loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("reconciler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.loop(runCtx)

	o.logger.Info("Reconciler started", "sweep_interval", o.cfg.SweepInterval)
	return nil
}

// Stop stops the sweep loop and waits for in-flight fetches.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}

	o.cancel()
	o.running = false
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		o.fetchWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("Reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests an immediate sweep. Requests made while one is pending
// are coalesced.
func (o *Orchestrator) Trigger() {
	select {
	case o.triggerCh <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep()
		case <-o.triggerCh:
			o.Sweep()
		}
	}
}
