// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the admin HTTP interface of the cue-point service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/api/middleware"
	"github.com/ManuGH/cuepoint/internal/bus"
	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/domain/adbreak"
	"github.com/ManuGH/cuepoint/internal/domain/encoding"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/log"
)

// AdBreaks is the scheduler surface the API drives.
type AdBreaks interface {
	Schedule(ctx context.Context, b *model.AdBreak) (*model.AdBreak, error)
	Cancel(ctx context.Context, id string) (*model.AdBreak, error)
	CrashOut(ctx context.Context, id string) (*model.AdBreak, error)
	Get(ctx context.Context, id string) (*model.AdBreak, error)
	List(ctx context.Context, statuses ...model.AdBreakStatus) ([]*model.AdBreak, error)
	Markers(ctx context.Context, id string) ([]model.CueMarker, error)
	RecentMarkers(ctx context.Context, limit int) ([]model.CueMarker, error)
	Pending() []adbreak.PendingTimer
}

// Encoding is the supervisor surface the API drives.
type Encoding interface {
	Start(ctx context.Context, streamID string) (*model.EncodingSession, error)
	Stop(ctx context.Context, id string) (*model.EncodingSession, error)
	GetStatus(ctx context.Context, id string) (*encoding.Status, error)
	Sessions(ctx context.Context, statuses ...model.SessionStatus) ([]*model.EncodingSession, error)
	ListActiveSessionIDs() []string
}

// EventSource feeds the server-sent event stream.
type EventSource interface {
	Subscribe(ctx context.Context, topic string) (bus.Subscriber, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness serves the readiness probe.
type Readiness interface {
	ServeReady(w http.ResponseWriter, r *http.Request)
}

// Deps are the collaborators of the API. AdBreaks, Encoding and Streams are
// required.
type Deps struct {
	AdBreaks AdBreaks
	Encoding Encoding
	Streams  ports.StreamStore
	Audit    ports.AuditLog
	Events   EventSource
	Health   Pinger
	Ready    Readiness
	Clock    clock.Clock
}

// Config tunes the HTTP surface.
type Config struct {
	// RateLimit is the per-client budget for mutating requests per minute.
	RateLimit int
	// TracingService enables otelhttp spans under this name.
	TracingService string
	Version        string
	// Heartbeat is the event stream keep-alive interval.
	Heartbeat time.Duration
}

// Server holds the handlers.
type Server struct {
	adBreaks  AdBreaks
	encoding  Encoding
	streams   ports.StreamStore
	audit     ports.AuditLog
	events    EventSource
	health    Pinger
	ready     Readiness
	clock     clock.Clock
	cfg       Config
	startedAt time.Time
	logger    zerolog.Logger
}

// New validates deps and builds a Server.
func New(deps Deps, cfg Config) (*Server, error) {
	if deps.AdBreaks == nil || deps.Encoding == nil || deps.Streams == nil {
		return nil, errors.New("api: ad-break, encoding and stream dependencies are required")
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	s := &Server{
		adBreaks: deps.AdBreaks,
		encoding: deps.Encoding,
		streams:  deps.Streams,
		audit:    deps.Audit,
		events:   deps.Events,
		health:   deps.Health,
		ready:    deps.Ready,
		clock:    deps.Clock,
		cfg:      cfg,
		logger:   log.WithComponent("api"),
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	s.startedAt = s.clock.Now()
	return s, nil
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	middleware.ApplyStack(r, middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})
	mutating := middleware.RateLimit(middleware.RateLimitConfig{
		RequestLimit: s.cfg.RateLimit,
		WindowSize:   time.Minute,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/adbreaks", func(r chi.Router) {
			r.Get("/", s.handleListAdBreaks)
			r.With(mutating).Post("/", s.handleScheduleAdBreak)
			r.Get("/pending", s.handlePendingTimers)
			r.Get("/{id}", s.handleGetAdBreak)
			r.With(mutating).Delete("/{id}", s.handleCancelAdBreak)
			r.Get("/{id}/markers", s.handleAdBreakMarkers)
			r.With(mutating).Post("/{id}/crash-out", s.handleCrashOut)
		})
		r.Get("/markers", s.handleRecentMarkers)

		r.Route("/encoding", func(r chi.Router) {
			r.With(mutating).Post("/", s.handleStartEncoding)
			r.Get("/active", s.handleActiveSessions)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/{id}", s.handleSessionStatus)
			r.With(mutating).Post("/{id}/stop", s.handleStopEncoding)
		})

		r.Route("/streams", func(r chi.Router) {
			r.Get("/", s.handleListStreams)
			r.Get("/{id}", s.handleGetStream)
			r.With(mutating).Put("/{id}", s.handlePutStream)
		})

		r.Get("/status", s.handleSystemStatus)
		r.Get("/audit", s.handleAudit)
		r.Get("/events", s.handleEvents)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not allowed here")
	})
	return r
}
