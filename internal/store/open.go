// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/persistence/sqlite"
	"github.com/ManuGH/cuepoint/internal/store/memstore"
	"github.com/ManuGH/cuepoint/internal/store/sqlitestore"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and tunes the backend.
type Options struct {
	Backend     string
	Path        string
	BusyTimeout time.Duration
	Retry       RetryPolicy
}

// Open builds the configured backend wrapped in metrics and retry decorators.
func Open(ctx context.Context, opts Options) (ports.Store, error) {
	var (
		inner ports.Store
		err   error
	)
	switch opts.Backend {
	case BackendSQLite, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("store: sqlite backend requires a path")
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
		cfg := sqlite.DefaultConfig()
		if opts.BusyTimeout > 0 {
			cfg.BusyTimeout = opts.BusyTimeout
		}
		inner, err = sqlitestore.Open(ctx, opts.Path, cfg)
		if err != nil {
			return nil, err
		}
	case BackendMemory:
		inner = memstore.New()
	default:
		return nil, fmt.Errorf("store: unknown backend %q", opts.Backend)
	}
	backend := opts.Backend
	if backend == "" {
		backend = BackendSQLite
	}
	return WithRetry(NewInstrumented(inner, backend), opts.Retry), nil
}
