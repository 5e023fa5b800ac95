// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package adbreak

import (
	"context"
	"fmt"
	"sync"
)

// inflight tracks timer callbacks and provides a bounded join on shutdown.
type inflight struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// enter registers one unit of work. It reports false once closing.
func (r *inflight) enter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return false
	}
	r.wg.Add(1)
	return true
}

func (r *inflight) exit() { r.wg.Done() }

func (r *inflight) closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

func (r *inflight) closeAndWait(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler callback drain timeout: %w", ctx.Err())
	}
}
