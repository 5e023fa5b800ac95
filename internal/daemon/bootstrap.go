// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon assembles the cue-point runtime and owns its lifecycle.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/api"
	"github.com/ManuGH/cuepoint/internal/bus"
	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/config"
	"github.com/ManuGH/cuepoint/internal/domain/adbreak"
	"github.com/ManuGH/cuepoint/internal/domain/encoding"
	"github.com/ManuGH/cuepoint/internal/domain/marker"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/health"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/process"
	"github.com/ManuGH/cuepoint/internal/store"
	"github.com/ManuGH/cuepoint/internal/telemetry"
)

// seedTimeout bounds the startup writes of configured streams.
const seedTimeout = 10 * time.Second

// Options override collaborators, mainly for tests.
type Options struct {
	Clock    clock.Clock
	Launcher encoding.Launcher
	Attacher encoding.Attacher
}

// Runtime is the assembled daemon.
type Runtime struct {
	Config     config.AppConfig
	Store      ports.Store
	Events     *bus.MemoryBus
	Scheduler  *adbreak.Scheduler
	Supervisor *encoding.Supervisor
	API        *api.Server
	Manager    Manager
	App        *App

	logger zerolog.Logger
}

// Build wires every component from cfg and recovers persisted state. On
// error everything already opened is released.
func Build(ctx context.Context, cfg config.AppConfig, holder *config.Holder, opts Options) (_ *Runtime, err error) {
	logger := log.WithComponent("daemon")
	var hooks []namedHook
	defer func() {
		if err == nil {
			return
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			_ = hooks[i].hook(context.WithoutCancel(ctx))
		}
	}()

	if err := health.PerformStartupChecks(cfg); err != nil {
		return nil, err
	}
	probes := health.NewManager(cfg.Version)

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	hooks = append(hooks, namedHook{"telemetry", tp.Shutdown})

	st, err := store.Open(ctx, store.Options{
		Backend:     cfg.Store.Backend,
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
		Retry: store.RetryPolicy{
			MaxTries:        uint(max(cfg.Store.Retry.MaxTries, 1)),
			InitialInterval: cfg.Store.Retry.InitialInterval,
			MaxInterval:     cfg.Store.Retry.MaxInterval,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	hooks = append(hooks, namedHook{"store", func(context.Context) error { return st.Close() }})
	probes.RegisterChecker(health.NewPingChecker("store", st.Ping, true))

	if err := seedStreams(ctx, st, cfg.Streams); err != nil {
		return nil, err
	}

	events := bus.NewMemoryBus()
	fanout := bus.Fanout{events}
	if cfg.Redis.Enabled {
		redisPub, err := bus.NewRedisPublisher(ctx, bus.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,

			BreakerThreshold: cfg.Redis.BreakerThreshold,
			BreakerReset:     cfg.Redis.BreakerReset,
		}, log.WithComponent("redis"))
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, namedHook{"redis", func(context.Context) error { return redisPub.Close() }})
		fanout = append(fanout, redisPub)
		probes.RegisterChecker(health.NewPingChecker("redis", redisPub.HealthCheck, false))
	}
	publisher := bus.NewBroadcaster(fanout, bus.DefaultPublishTimeout)

	codec, err := marker.ParseCodec(cfg.Scheduler.Codec)
	if err != nil {
		return nil, err
	}
	sched, err := adbreak.New(adbreak.Deps{
		Store:     st,
		Sequencer: st,
		Encoder: marker.NewEncoder(
			marker.WithCodec(codec),
			marker.WithUPIDType(uint8(cfg.Scheduler.UPIDType)),
		),
		Clock:     opts.Clock,
		Publisher: publisher,
		Audit:     st,
		Streams:   st,
	},
		adbreak.WithMarkerKind(model.MarkerKind(cfg.Scheduler.MarkerKind)),
		adbreak.WithCallbackTimeout(cfg.Scheduler.CallbackTimeout),
		adbreak.WithFireRetry(cfg.Scheduler.FireAttempts, cfg.Scheduler.RetryDelay),
	)
	if err != nil {
		return nil, err
	}
	hooks = append(hooks, namedHook{"scheduler", sched.Shutdown})

	launcher, attacher := opts.Launcher, opts.Attacher
	if launcher == nil {
		pl := process.New()
		launcher = pl
		if attacher == nil {
			attacher = pl
		}
	}
	sup, err := encoding.New(encoding.Deps{
		Store:     st,
		Launcher:  launcher,
		Attacher:  attacher,
		Clock:     opts.Clock,
		Publisher: publisher,
		Audit:     st,
	}, encoding.Config{
		FFmpegPath:       cfg.FFmpeg.Bin,
		OutputDir:        cfg.FFmpeg.OutputDir,
		StopGrace:        cfg.FFmpeg.StopGrace,
		ProgressInterval: cfg.FFmpeg.ProgressInterval,
		ShutdownPolicy:   cfg.FFmpeg.ShutdownPolicy,
	})
	if err != nil {
		return nil, err
	}
	hooks = append(hooks, namedHook{"supervisor", sup.Shutdown})
	probes.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin))
	if cfg.FFmpeg.OutputDir != "" {
		probes.RegisterChecker(health.NewDirChecker("output", cfg.FFmpeg.OutputDir))
	}

	breaks, err := sched.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover ad breaks: %w", err)
	}
	sessions, err := sup.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover encoding sessions: %w", err)
	}
	logger.Info().
		Int("rearmed", breaks.Rearmed).
		Int("late", breaks.Late).
		Int("completed", breaks.Completed).
		Int("attached", sessions.Attached).
		Int("lost", sessions.Lost).
		Msg("state recovered")

	apiSrv, err := api.New(api.Deps{
		AdBreaks: sched,
		Encoding: sup,
		Streams:  st,
		Audit:    st,
		Events:   events,
		Health:   st,
		Ready:    probes,
		Clock:    opts.Clock,
	}, api.Config{
		RateLimit:      cfg.Server.RateLimit,
		TracingService: tracingService(cfg),
		Version:        cfg.Version,
	})
	if err != nil {
		return nil, err
	}

	mgr, err := NewManager(Deps{
		Logger:  log.Base(),
		Server:  cfg.Server,
		Handler: apiSrv.Handler(),
	})
	if err != nil {
		return nil, err
	}
	// Hooks run in reverse: the domain stops before the store closes.
	for _, h := range hooks {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}

	if holder != nil {
		holder.OnReload(config.ApplyLogLevel)
		holder.OnReload(func(old, next config.AppConfig) {
			ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
			defer cancel()
			if err := seedStreams(ctx, st, next.Streams); err != nil {
				logger.Warn().Err(err).Msg("apply reloaded streams")
			}
		})
	}

	return &Runtime{
		Config:     cfg,
		Store:      st,
		Events:     events,
		Scheduler:  sched,
		Supervisor: sup,
		API:        apiSrv,
		Manager:    mgr,
		App:        NewApp(logger, mgr, holder),
		logger:     logger,
	}, nil
}

// Run serves until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info().
		Str("version", r.Config.Version).
		Str("listen", r.Config.Server.ListenAddr).
		Str("store", r.Config.Store.Backend).
		Msg("starting cuepointd")
	return r.App.Run(ctx)
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.Telemetry.ServiceName
}

// seedStreams upserts the configured streams. Existing statuses survive.
func seedStreams(ctx context.Context, st ports.StreamStore, entries []config.StreamEntry) error {
	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()
	for _, e := range entries {
		if err := st.PutStream(ctx, e.Stream()); err != nil {
			return fmt.Errorf("seed stream %q: %w", e.ID, err)
		}
	}
	return nil
}
