// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/cuepoint/internal/domain/encoding"
	"github.com/ManuGH/cuepoint/internal/domain/marker"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/ffmpeg"
	"github.com/ManuGH/cuepoint/internal/scte35"
	"github.com/ManuGH/cuepoint/internal/store"
	"github.com/ManuGH/cuepoint/internal/telemetry"
)

// Loader builds an AppConfig from defaults, a YAML file and the environment.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the last Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader returns a Loader for configPath. An empty path skips the file.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	enc := encoding.DefaultConfig()
	retry := store.DefaultRetryPolicy()
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       120,
		},
		Log: LogConfig{Level: "info", Service: "cuepointd"},
		Store: StoreConfig{
			Backend:     store.BackendSQLite,
			Path:        filepath.Join("data", "cuepoint.db"),
			BusyTimeout: 5 * time.Second,
			Retry: RetryConfig{
				MaxTries:        int(retry.MaxTries),
				InitialInterval: retry.InitialInterval,
				MaxInterval:     retry.MaxInterval,
			},
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			Prefix:           "cuepoint",
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "cuepointd",
			Environment:  "production",
			Exporter:     telemetry.ExporterGRPC,
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		FFmpeg: FFmpegConfig{
			Bin:              ffmpeg.DefaultBinary,
			OutputDir:        enc.OutputDir,
			StopGrace:        enc.StopGrace,
			ProgressInterval: enc.ProgressInterval,
			ShutdownPolicy:   enc.ShutdownPolicy,
		},
		Scheduler: SchedulerConfig{
			MarkerKind:      string(model.MarkerSpliceInsert),
			Codec:           marker.CodecBinary,
			UPIDType:        int(scte35.UPIDURI),
			CallbackTimeout: 10 * time.Second,
			RetryDelay:      5 * time.Second,
			FireAttempts:    3,
		},
	}
}

// Load merges defaults, the file and the environment, then validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.ConsumedEnvKeys = make(map[string]struct{})
	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown keys are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	// #nosec G304 -- the path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) envString(dst *string, name string) { *dst = ParseString(l.key(name), *dst) }

func (l *Loader) envInt(dst *int, name string) { *dst = ParseInt(l.key(name), *dst) }

func (l *Loader) envBool(dst *bool, name string) { *dst = ParseBool(l.key(name), *dst) }

func (l *Loader) envFloat(dst *float64, name string) { *dst = ParseFloat(l.key(name), *dst) }

func (l *Loader) envDuration(dst *time.Duration, name string) {
	*dst = ParseDuration(l.key(name), *dst)
}

// mergeEnv overrides cfg with CUEPOINT_* variables. Streams are file-only.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	l.envString(&cfg.Server.ListenAddr, "LISTEN_ADDR")
	l.envDuration(&cfg.Server.ReadTimeout, "READ_TIMEOUT")
	l.envDuration(&cfg.Server.WriteTimeout, "WRITE_TIMEOUT")
	l.envDuration(&cfg.Server.IdleTimeout, "IDLE_TIMEOUT")
	l.envDuration(&cfg.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT")
	l.envInt(&cfg.Server.RateLimit, "RATE_LIMIT")

	l.envString(&cfg.Log.Level, "LOG_LEVEL")
	l.envString(&cfg.Log.Service, "LOG_SERVICE")

	l.envString(&cfg.Store.Backend, "STORE_BACKEND")
	l.envString(&cfg.Store.Path, "STORE_PATH")
	l.envDuration(&cfg.Store.BusyTimeout, "STORE_BUSY_TIMEOUT")
	l.envInt(&cfg.Store.Retry.MaxTries, "STORE_RETRY_MAX_TRIES")

	l.envBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	l.envString(&cfg.Redis.Addr, "REDIS_ADDR")
	l.envString(&cfg.Redis.Password, "REDIS_PASSWORD")
	l.envInt(&cfg.Redis.DB, "REDIS_DB")
	l.envString(&cfg.Redis.Prefix, "REDIS_PREFIX")

	l.envBool(&cfg.Telemetry.Enabled, "TELEMETRY_ENABLED")
	l.envString(&cfg.Telemetry.Exporter, "TELEMETRY_EXPORTER")
	l.envString(&cfg.Telemetry.Endpoint, "TELEMETRY_ENDPOINT")
	l.envString(&cfg.Telemetry.Environment, "TELEMETRY_ENVIRONMENT")
	l.envFloat(&cfg.Telemetry.SamplingRate, "TELEMETRY_SAMPLING_RATE")

	l.envString(&cfg.FFmpeg.Bin, "FFMPEG_BIN")
	l.envString(&cfg.FFmpeg.OutputDir, "FFMPEG_OUTPUT_DIR")
	l.envDuration(&cfg.FFmpeg.StopGrace, "FFMPEG_STOP_GRACE")
	l.envDuration(&cfg.FFmpeg.ProgressInterval, "FFMPEG_PROGRESS_INTERVAL")
	l.envString(&cfg.FFmpeg.ShutdownPolicy, "FFMPEG_SHUTDOWN_POLICY")

	l.envString(&cfg.Scheduler.MarkerKind, "MARKER_KIND")
	l.envString(&cfg.Scheduler.Codec, "MARKER_CODEC")
	l.envInt(&cfg.Scheduler.UPIDType, "MARKER_UPID_TYPE")
	l.envDuration(&cfg.Scheduler.RetryDelay, "SCHEDULER_RETRY_DELAY")
	l.envInt(&cfg.Scheduler.FireAttempts, "SCHEDULER_FIRE_ATTEMPTS")
}
