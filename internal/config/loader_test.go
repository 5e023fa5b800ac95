// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/scte35"
	"github.com/ManuGH/cuepoint/internal/testutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cuepoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "splice_insert", cfg.Scheduler.MarkerKind)
	assert.Equal(t, "scte35", cfg.Scheduler.Codec)
	assert.Equal(t, int(scte35.UPIDURI), cfg.Scheduler.UPIDType)
	assert.Equal(t, "detach", cfg.FFmpeg.ShutdownPolicy)
	assert.Equal(t, 5*time.Second, cfg.FFmpeg.StopGrace)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Streams)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listenAddr: "127.0.0.1:9090"
log:
  level: debug
store:
  backend: memory
ffmpeg:
  stopGrace: 2s
  shutdownPolicy: terminate
scheduler:
  markerKind: time_signal
  codec: json
  upidType: 8
streams:
  - id: channel-1
    inputUrl: "udp://239.0.0.1:5000"
    outputUrl: "udp://239.0.1.1:5000"
    bitrate: 8000
    resolution: 1280x720
    bFrames: 0
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2*time.Second, cfg.FFmpeg.StopGrace)
	assert.Equal(t, "terminate", cfg.FFmpeg.ShutdownPolicy)
	assert.Equal(t, "time_signal", cfg.Scheduler.MarkerKind)
	assert.Equal(t, 8, cfg.Scheduler.UPIDType)
	// Untouched keys keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Len(t, cfg.Streams, 1)
	st := cfg.Streams[0].Stream()
	assert.Equal(t, "channel-1", st.ID)
	assert.Equal(t, "channel-1", st.Name)
	assert.Equal(t, model.StreamIdle, st.Status)
	assert.Equal(t, 8000, st.Config.Bitrate)
	assert.Equal(t, "1280x720", st.Config.Resolution)
	assert.Equal(t, 0, st.Config.BFrames)
	assert.Equal(t, 500, st.Config.SCTE35PID, "profile default")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\nserver:\n  rateLimit: 10\n")
	t.Setenv("CUEPOINT_LOG_LEVEL", "warn")
	t.Setenv("CUEPOINT_RATE_LIMIT", "not-a-number")
	t.Setenv("CUEPOINT_FFMPEG_STOP_GRACE", "750ms")
	t.Setenv("CUEPOINT_REDIS_ENABLED", "yes")
	t.Setenv("CUEPOINT_REDIS_PASSWORD", "hunter2")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Server.RateLimit, "unparsable env keeps the file value")
	assert.Equal(t, 750*time.Millisecond, cfg.FFmpeg.StopGrace)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Contains(t, l.ConsumedEnvKeys, "CUEPOINT_LOG_LEVEL")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  markerKnd: time_signal\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoadRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuepoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "").Load()
	assert.ErrorContains(t, err, "only YAML supported")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n---\nlog:\n  level: debug\n")
	_, err := NewLoader(path, "").Load()
	assert.ErrorContains(t, err, "multiple documents")
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, ""), "").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server, cfg.Server)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "loud"
	cfg.Store.Backend = "postgres"
	cfg.FFmpeg.ShutdownPolicy = "abandon"
	cfg.Scheduler.MarkerKind = "splice_null"
	cfg.Scheduler.UPIDType = 0x0C
	cfg.Streams = []StreamEntry{
		{ID: "a", InputURL: "udp://in", OutputURL: "udp://out"},
		{ID: "a", InputURL: "udp://in", OutputURL: "udp://out"},
		{ID: "b", OutputURL: "udp://out"},
		{InputURL: "udp://in"},
	}

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	for _, field := range []string{
		"log.level", "store.backend", "ffmpeg.shutdownPolicy", "scheduler.markerKind",
		"scheduler.upidType", "streams[1].id", "streams[2]", "streams[3].id",
	} {
		assert.ErrorContains(t, err, field+":")
	}
}

func TestValidateTelemetryOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Exporter = "zipkin"
	require.NoError(t, Validate(cfg))

	cfg.Telemetry.Enabled = true
	assert.ErrorContains(t, Validate(cfg), "telemetry.exporter")
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	path := filepath.Join(testutil.MustRepoRoot(t), "config.example.yaml")
	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "dev"
	got := cfg
	require.Len(t, got.Streams, 1)
	assert.Equal(t, "channel-1", got.Streams[0].ID)
	got.Streams = nil
	assert.Equal(t, want, got, "example config documents the defaults")
}
