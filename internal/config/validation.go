// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/domain/encoding"
	"github.com/ManuGH/cuepoint/internal/domain/marker"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/ffmpeg"
	"github.com/ManuGH/cuepoint/internal/scte35"
	"github.com/ManuGH/cuepoint/internal/store"
	"github.com/ManuGH/cuepoint/internal/telemetry"
)

// FieldError names the offending key.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Reason }

func (e *FieldError) Unwrap() error { return ErrInvalidConfig }

// Validate reports every problem in cfg at once.
func Validate(cfg AppConfig) error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
		bad("server.listenAddr", "%v", err)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		bad("server.shutdownTimeout", "must be positive")
	}
	if cfg.Server.RateLimit < 0 {
		bad("server.rateLimit", "must not be negative")
	}

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		bad("log.level", "unknown level %q", cfg.Log.Level)
	}

	switch cfg.Store.Backend {
	case store.BackendSQLite:
		if cfg.Store.Path == "" {
			bad("store.path", "required for the sqlite backend")
		}
	case store.BackendMemory:
	default:
		bad("store.backend", "must be %q or %q", store.BackendSQLite, store.BackendMemory)
	}
	if cfg.Store.Retry.MaxTries < 1 {
		bad("store.retry.maxTries", "must be at least 1")
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		bad("redis.addr", "required when redis is enabled")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Exporter != telemetry.ExporterGRPC && cfg.Telemetry.Exporter != telemetry.ExporterHTTP {
			bad("telemetry.exporter", "must be %q or %q", telemetry.ExporterGRPC, telemetry.ExporterHTTP)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			bad("telemetry.samplingRate", "must be within [0, 1]")
		}
	}

	if cfg.FFmpeg.Bin == "" {
		bad("ffmpeg.bin", "required")
	}
	if cfg.FFmpeg.StopGrace <= 0 {
		bad("ffmpeg.stopGrace", "must be positive")
	}
	if cfg.FFmpeg.ShutdownPolicy != encoding.ShutdownDetach && cfg.FFmpeg.ShutdownPolicy != encoding.ShutdownTerminate {
		bad("ffmpeg.shutdownPolicy", "must be %q or %q", encoding.ShutdownDetach, encoding.ShutdownTerminate)
	}

	switch model.MarkerKind(cfg.Scheduler.MarkerKind) {
	case model.MarkerSpliceInsert, model.MarkerTimeSignal:
	default:
		bad("scheduler.markerKind", "must be %q or %q", model.MarkerSpliceInsert, model.MarkerTimeSignal)
	}
	if _, err := marker.ParseCodec(cfg.Scheduler.Codec); err != nil {
		bad("scheduler.codec", "%v", err)
	}
	if u := cfg.Scheduler.UPIDType; u < 0 || u > 0xFF {
		bad("scheduler.upidType", "out of range")
	} else {
		switch uint8(u) {
		case scte35.UPIDTI, scte35.UPIDADI, scte35.UPIDURI:
		default:
			bad("scheduler.upidType", "unsupported UPID type %#x", u)
		}
	}
	if cfg.Scheduler.FireAttempts < 1 {
		bad("scheduler.fireAttempts", "must be at least 1")
	}

	seen := make(map[string]struct{}, len(cfg.Streams))
	for i, e := range cfg.Streams {
		field := fmt.Sprintf("streams[%d]", i)
		if e.ID == "" {
			bad(field+".id", "required")
			continue
		}
		if _, dup := seen[e.ID]; dup {
			bad(field+".id", "duplicate stream %q", e.ID)
		}
		seen[e.ID] = struct{}{}
		if _, err := ffmpeg.BuildArgs(e.Stream().Config); err != nil {
			bad(field, "%v", err)
		}
	}

	return errors.Join(errs...)
}
