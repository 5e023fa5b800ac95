// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReloadNotifiesListeners(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	l := NewLoader(path, "")
	initial, err := l.Load()
	require.NoError(t, err)
	h := NewHolder(initial, l)

	var got []string
	h.OnReload(func(old, next AppConfig) { got = append(got, old.Log.Level+"->"+next.Log.Level) })

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, "debug", h.Get().Log.Level)
	assert.Equal(t, []string{"info->debug"}, got)
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	l := NewLoader(path, "")
	initial, err := l.Load()
	require.NoError(t, err)
	h := NewHolder(initial, l)
	called := false
	h.OnReload(func(AppConfig, AppConfig) { called = true })

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: shouting\n"), 0o600))
	assert.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "info", h.Get().Log.Level)
	assert.False(t, called)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	l := NewLoader(path, "")
	initial, err := l.Load()
	require.NoError(t, err)
	h := NewHolder(initial, l)
	var reloads atomic.Int32
	h.OnReload(func(AppConfig, AppConfig) { reloads.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))
	t.Cleanup(func() { require.NoError(t, h.Close()) })

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600))
	require.Eventually(t, func() bool { return h.Get().Log.Level == "warn" }, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestWatchWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", ""))
	require.NoError(t, h.Watch(context.Background()))
	assert.NoError(t, h.Close())
}
