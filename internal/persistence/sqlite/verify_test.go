// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_AppliesOnceAndTracksVersion(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "migrate.sqlite")

	db, err := Open(ctx, dbPath, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{Version: 1, Statements: []string{`CREATE TABLE a (id INTEGER PRIMARY KEY)`}},
		{Version: 2, Statements: []string{`CREATE TABLE b (id INTEGER PRIMARY KEY)`}},
	}

	v, err := Migrate(ctx, db, migrations)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// Re-running must not try to recreate the tables.
	v, err = Migrate(ctx, db, migrations)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrate_FailedStepRollsBack(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "broken.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	v, err := Migrate(ctx, db, []Migration{
		{Version: 1, Statements: []string{`CREATE TABLE ok (id INTEGER)`}},
		{Version: 2, Statements: []string{`CREATE TABLE half (id INTEGER)`, `NOT SQL`}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, v)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'half'`).Scan(&n))
	assert.Zero(t, n)
}

func TestVerifyIntegrity_HealthyDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "healthy.sqlite")

	db, err := Open(ctx, dbPath, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	issues, err := VerifyIntegrity(ctx, dbPath, VerifyQuick)
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestVerifyIntegrity_NotADatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "garbage.sqlite")
	require.NoError(t, os.WriteFile(dbPath, []byte("this is definitely not a sqlite file, padded to be long enough....."), 0o600))

	issues, err := VerifyIntegrity(context.Background(), dbPath, VerifyFull)
	if err == nil {
		assert.NotEmpty(t, issues)
	}
}
