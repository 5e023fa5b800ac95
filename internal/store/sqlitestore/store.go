// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sqlitestore is the durable ports.Store backed by SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/persistence/sqlite"
)

var _ ports.Store = (*Store)(nil)

// Store implements ports.Store on a single SQLite database.
type Store struct {
	db    *sql.DB
	path  string
	clock clock.Clock
}

// Option customises a Store.
type Option func(*Store)

// WithClock sets the source of UpdatedAt stamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (or creates) the database at path and migrates it.
func Open(ctx context.Context, path string, cfg sqlite.Config, opts ...Option) (*Store, error) {
	db, err := sqlite.Open(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path, clock: clock.Real{}}
	for _, opt := range opts {
		opt(s)
	}

	v, err := sqlite.Migrate(ctx, db, migrations)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if v < schemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: schema version %d below required %d", v, schemaVersion)
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) now() time.Time { return s.clock.Now().UTC() }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func ptrMs(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// inClause renders "col IN (?,?,..)" for n placeholders.
func inClause(col string, n int) string {
	return col + " IN (" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}
