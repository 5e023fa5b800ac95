// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cuepoint/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestReadyWithoutCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)
}

func TestReadyAggregatesStatus(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "store", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "ffmpeg", status: StatusDegraded})

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)

	m.RegisterChecker(&mockChecker{name: "redis", status: StatusUnhealthy})
	m.RegisterChecker(&mockChecker{name: "late", status: StatusDegraded})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReadyBoundsEachCheck(t *testing.T) {
	m := NewManager("")
	m.timeout = 20 * time.Millisecond
	m.RegisterChecker(NewPingChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, true))

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline")
}

func TestServeReady(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(&mockChecker{name: "store", status: StatusHealthy})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Ready)
	assert.Equal(t, StatusHealthy, body.Checks["store"].Status)

	m.RegisterChecker(&mockChecker{name: "redis", status: StatusUnhealthy})
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("store", func(context.Context) error { return nil }, true)
	assert.Equal(t, "store", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	down := errors.New("connection refused")
	critical := NewPingChecker("store", func(context.Context) error { return down }, true)
	res := critical.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "connection refused", res.Error)

	optional := NewPingChecker("redis", func(context.Context) error { return down }, false)
	assert.Equal(t, StatusDegraded, optional.Check(context.Background()).Status)
}

func TestBinaryChecker(t *testing.T) {
	c := NewBinaryChecker("ffmpeg", "ffmpeg")
	c.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "/usr/bin/ffmpeg", res.Message)

	c.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	assert.Equal(t, StatusDegraded, NewBinaryChecker("ffmpeg", "").Check(context.Background()).Status)
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, NewDirChecker("output", dir).Check(context.Background()).Status)

	missing := NewDirChecker("output", filepath.Join(dir, "missing")).Check(context.Background())
	assert.Equal(t, StatusHealthy, missing.Status)
	assert.Equal(t, "created on first session", missing.Message)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	res := NewDirChecker("output", file).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Error, "not a directory")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "write probe is removed")
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.FFmpeg.OutputDir = filepath.Join(dir, "output")
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(dir, "db", "cuepoint.db")
	require.NoError(t, PerformStartupChecks(cfg))

	info, err := os.Stat(filepath.Join(dir, "db"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	bad := cfg
	bad.Server.ListenAddr = "localhost"
	assert.ErrorContains(t, PerformStartupChecks(bad), "invalid listen address")

	bad = cfg
	bad.Server.ListenAddr = "localhost:99999"
	assert.ErrorContains(t, PerformStartupChecks(bad), "invalid listen port")

	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	bad = cfg
	bad.FFmpeg.OutputDir = file
	assert.ErrorContains(t, PerformStartupChecks(bad), "output directory check failed")

	bad = cfg
	bad.Store.Path = dir
	assert.ErrorContains(t, PerformStartupChecks(bad), "database path is a directory")
}
