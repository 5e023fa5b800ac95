// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package encoding supervises one transcoder process per stream and keeps
// session and stream status in step with it.
package encoding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/ffmpeg"
	"github.com/ManuGH/cuepoint/internal/keylock"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
	"github.com/ManuGH/cuepoint/internal/telemetry"
)

const (
	component  = "encoding"
	tracerName = "cuepoint.encoding"

	// ReasonLost marks sessions whose process vanished while the daemon was down.
	ReasonLost = "process lost across restart"
)

// Shutdown policies.
const (
	ShutdownDetach    = "detach"
	ShutdownTerminate = "terminate"
)

// ErrClosed is returned by Start after Shutdown.
var ErrClosed = fmt.Errorf("%w: encoding supervisor is shut down", model.ErrResource)

// Store is the persistence the supervisor writes through.
type Store interface {
	ports.SessionStore
	ports.StreamStore
}

// Deps are the supervisor's collaborators. Store and Launcher are required.
type Deps struct {
	Store    Store
	Launcher Launcher
	// Attacher reconnects to surviving processes in Recover.
	Attacher  Attacher
	Clock     clock.Clock
	Publisher ports.Publisher
	Audit     ports.AuditLog
}

// Config tunes the supervisor.
type Config struct {
	// FFmpegPath is the transcoder binary.
	FFmpegPath string
	// OutputDir is the base directory for streams without their own.
	OutputDir string
	// StopGrace is how long Stop waits before escalating to a kill.
	StopGrace time.Duration
	// ProgressInterval throttles persisted progress updates.
	ProgressInterval time.Duration
	// WriteTimeout bounds store writes made off the request path.
	WriteTimeout time.Duration
	// ShutdownPolicy is ShutdownDetach or ShutdownTerminate.
	ShutdownPolicy string
}

// DefaultConfig returns the supervisor defaults.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:       ffmpeg.DefaultBinary,
		OutputDir:        "data/output",
		StopGrace:        5 * time.Second,
		ProgressInterval: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		ShutdownPolicy:   ShutdownDetach,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FFmpegPath == "" {
		c.FFmpegPath = d.FFmpegPath
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.StopGrace <= 0 {
		c.StopGrace = d.StopGrace
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ShutdownPolicy == "" {
		c.ShutdownPolicy = d.ShutdownPolicy
	}
	return c
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// tracked is the in-memory record of a supervised process. Mutable fields
// are guarded by Supervisor.mu.
type tracked struct {
	sessionID string
	streamID  string
	handle    ProcessHandle
	// detach ends the observer without a terminal write.
	detach     chan struct{}
	detachOnce sync.Once
	// abort hands an exit decided outside the observer to it for retry.
	abort chan ExitStatus

	status        model.SessionStatus
	exited        bool
	stopRequested bool
	killTimer     clock.Timer
	progress      Progress
	lastPersist   time.Time
}

// Supervisor owns the encoding sessions of this process.
type Supervisor struct {
	store     Store
	launcher  Launcher
	attacher  Attacher
	clock     clock.Clock
	publisher ports.Publisher
	auditLog  ports.AuditLog
	cfg       Config
	logger    zerolog.Logger
	tracer    trace.Tracer

	locks     keylock.Mutex
	observers sync.WaitGroup
	// abandon ends pending exit retries when the shutdown drain gives up.
	abandon     chan struct{}
	abandonOnce sync.Once

	mu       sync.Mutex
	closing  bool
	byStream map[string]string
	active   map[string]*tracked
}

// New builds a Supervisor. Call Recover before serving traffic.
func New(deps Deps, cfg Config, opts ...Option) (*Supervisor, error) {
	if deps.Store == nil {
		return nil, errors.New("encoding: store is required")
	}
	if deps.Launcher == nil {
		return nil, errors.New("encoding: launcher is required")
	}
	cfg = cfg.withDefaults()
	if cfg.ShutdownPolicy != ShutdownDetach && cfg.ShutdownPolicy != ShutdownTerminate {
		return nil, fmt.Errorf("encoding: unknown shutdown policy %q", cfg.ShutdownPolicy)
	}
	s := &Supervisor{
		store:     deps.Store,
		launcher:  deps.Launcher,
		attacher:  deps.Attacher,
		clock:     deps.Clock,
		publisher: deps.Publisher,
		auditLog:  deps.Audit,
		cfg:       cfg,
		logger:    log.WithComponent(component),
		tracer:    telemetry.Tracer(tracerName),
		abandon:   make(chan struct{}),
		byStream:  make(map[string]string),
		active:    make(map[string]*tracked),
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start spawns the transcoder for streamID. At most one session per stream
// is STARTING or RUNNING.
func (s *Supervisor) Start(ctx context.Context, streamID string) (_ *model.EncodingSession, err error) {
	ctx, span := s.tracer.Start(ctx, "encoding.start")
	defer func() { telemetry.EndSpan(span, err) }()

	result := "error"
	defer func() { metrics.SessionStarts.WithLabelValues(result).Inc() }()

	stream, err := s.store.GetStream(ctx, streamID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := s.reserve(streamID, id); err != nil {
		if errors.Is(err, model.ErrConflict) {
			result = "conflict"
		}
		return nil, err
	}
	if err := s.checkPersistedActive(ctx, streamID); err != nil {
		s.releaseStream(streamID, id)
		result = "conflict"
		return nil, err
	}

	span.SetAttributes(telemetry.EncodingAttributes(id, streamID, stream.Config.Format, stream.Config.Resolution, stream.Config.Bitrate)...)

	// Events are published under the session lock so the observer's exit
	// events cannot overtake them.
	unlock := s.locks.Lock(id)
	sess, err := s.startLocked(ctx, stream, id)
	if err == nil {
		s.publishSession(ctx, sess)
		s.publishStream(ctx, streamID, model.StreamEncoding, Progress{})
	}
	unlock()
	if err != nil {
		var spawnErr *model.SpawnError
		if errors.As(err, &spawnErr) {
			result = "spawn_error"
		}
		return nil, err
	}

	result = "ok"
	metrics.ActiveSessions.Set(float64(s.activeCount()))
	s.logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldStreamID, streamID).
		Int(log.FieldPID, sess.PID).
		Str(log.FieldLogPath, sess.LogPath).
		Str(log.FieldEvent, "session.running").Msg("encoder running")
	s.audit(ctx, model.AuditInfo, "encoding started", sessionMeta(sess))
	return sess, nil
}

func (s *Supervisor) reserve(streamID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrClosed
	}
	if owner, ok := s.byStream[streamID]; ok {
		return &model.AlreadyEncodingError{StreamID: streamID, SessionID: owner}
	}
	s.byStream[streamID] = sessionID
	return nil
}

func (s *Supervisor) releaseStream(streamID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byStream[streamID] == sessionID {
		delete(s.byStream, streamID)
	}
}

// checkPersistedActive rejects a stream whose active session is not
// tracked here, e.g. before Recover ran.
func (s *Supervisor) checkPersistedActive(ctx context.Context, streamID string) error {
	sessions, err := s.store.ListSessions(ctx, model.SessionStarting, model.SessionRunning, model.SessionStopping)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.StreamID == streamID {
			return &model.AlreadyEncodingError{StreamID: streamID, SessionID: sess.ID}
		}
	}
	return nil
}

func (s *Supervisor) startLocked(ctx context.Context, stream *model.Stream, id string) (*model.EncodingSession, error) {
	args, err := ffmpeg.BuildArgs(stream.Config)
	if err != nil {
		s.releaseStream(stream.ID, id)
		return nil, err
	}
	outputDir := stream.Config.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(s.cfg.OutputDir, stream.ID)
	}
	logPath := filepath.Join(outputDir, "encoding_"+id+".log")
	commandLine := append([]string{s.cfg.FFmpegPath}, args...)

	sess := &model.EncodingSession{
		ID:          id,
		StreamID:    stream.ID,
		Status:      model.SessionStarting,
		StartedAt:   s.clock.Now(),
		LogPath:     logPath,
		CommandLine: commandLine,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		s.releaseStream(stream.ID, id)
		return nil, fmt.Errorf("persist session %q: %w", id, err)
	}
	s.logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldStreamID, stream.ID).
		Strs(log.FieldArgs, commandLine).
		Msg("starting encoder")

	handle, err := s.launcher.Launch(ctx, Spec{
		SessionID:  id,
		StreamID:   stream.ID,
		Path:       s.cfg.FFmpegPath,
		Args:       args,
		OutputDir:  outputDir,
		LogPath:    logPath,
		OnProgress: func(p Progress) { s.onProgress(id, p) },
	})
	if err != nil {
		s.spawnFailed(ctx, sess, err)
		return nil, &model.SpawnError{StreamID: stream.ID, SessionID: id, Err: err}
	}

	tr := &tracked{
		sessionID: id,
		streamID:  stream.ID,
		handle:    handle,
		detach:    make(chan struct{}),
		abort:     make(chan ExitStatus, 1),
		status:    model.SessionStarting,
	}
	s.track(tr)

	pid := handle.PID()
	running, err := s.store.UpdateSession(ctx, id, model.SessionPatch{
		Status: model.Ptr(model.SessionRunning),
		PID:    model.Ptr(pid),
	})
	if err != nil {
		// The observer records the terminal state once the kill lands.
		if kerr := handle.Signal(SignalKill); kerr != nil {
			s.logger.Error().Err(kerr).Str(log.FieldSessionID, id).Msg("kill after failed start persist")
		}
		return nil, fmt.Errorf("persist running session %q: %w", id, err)
	}
	s.setStatus(tr, model.SessionRunning)
	s.setStreamStatus(ctx, stream.ID, model.StreamEncoding)
	return running, nil
}

// spawnFailed records a launch failure. The stream keeps its prior status.
func (s *Supervisor) spawnFailed(ctx context.Context, sess *model.EncodingSession, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now()
	failed, err := s.store.UpdateSession(ctx, sess.ID, model.SessionPatch{
		Status:  model.Ptr(model.SessionError),
		EndedAt: model.Ptr(now),
		Reason:  model.Ptr("spawn failed: " + cause.Error()),
	})
	s.releaseStream(sess.StreamID, sess.ID)
	metrics.SessionExits.WithLabelValues(string(model.SessionError), "spawn_error").Inc()
	s.logger.Error().Err(cause).
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldStreamID, sess.StreamID).
		Str(log.FieldEvent, "session.spawn_failed").Msg("encoder spawn failed")
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldSessionID, sess.ID).Msg("persist spawn failure")
		return
	}
	s.audit(ctx, model.AuditError, "encoding spawn failed: "+cause.Error(), sessionMeta(failed))
	s.publishSession(ctx, failed)
}

func (s *Supervisor) track(tr *tracked) {
	s.mu.Lock()
	s.active[tr.sessionID] = tr
	s.mu.Unlock()
	s.observers.Add(1)
	go s.observe(tr)
}

func (s *Supervisor) untrack(tr *tracked) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[tr.sessionID] == tr {
		delete(s.active, tr.sessionID)
	}
	if s.byStream[tr.streamID] == tr.sessionID {
		delete(s.byStream, tr.streamID)
	}
	if tr.killTimer != nil {
		tr.killTimer.Stop()
		tr.killTimer = nil
	}
}

func (s *Supervisor) lookup(id string) *tracked {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *Supervisor) setStatus(tr *tracked, st model.SessionStatus) {
	s.mu.Lock()
	tr.status = st
	s.mu.Unlock()
}

func (s *Supervisor) hasExited(tr *tracked) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tr.exited
}

func (s *Supervisor) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Stop asks a STARTING or RUNNING session to terminate. The terminal status
// is written by the exit observer once the process is gone.
func (s *Supervisor) Stop(ctx context.Context, id string) (_ *model.EncodingSession, err error) {
	ctx, span := s.tracer.Start(ctx, "encoding.stop")
	defer func() { telemetry.EndSpan(span, err) }()

	unlock := s.locks.Lock(id)
	sess, changed, err := s.stopLocked(ctx, id)
	if err == nil && changed {
		s.publishSession(ctx, sess)
		s.publishStream(ctx, sess.StreamID, model.StreamStopping, Progress{})
	}
	unlock()
	if err != nil || !changed {
		return sess, err
	}

	s.logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldStreamID, sess.StreamID).
		Dur("grace", s.cfg.StopGrace).
		Str(log.FieldEvent, "session.stopping").Msg("encoder stop requested")
	s.audit(ctx, model.AuditInfo, "encoding stop requested", sessionMeta(sess))
	return sess, nil
}

func (s *Supervisor) stopLocked(ctx context.Context, id string) (*model.EncodingSession, bool, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	switch sess.Status {
	case model.SessionStopping:
		return sess, false, nil
	case model.SessionStarting, model.SessionRunning:
	default:
		return nil, false, &model.SessionNotActiveError{SessionID: id, Status: sess.Status}
	}
	tr := s.lookup(id)
	if tr == nil {
		return nil, false, &model.SessionNotActiveError{SessionID: id, Status: sess.Status}
	}
	if s.hasExited(tr) {
		// The observer is still recording the exit.
		return sess, false, nil
	}

	stopping, err := s.store.UpdateSession(ctx, id, model.SessionPatch{Status: model.Ptr(model.SessionStopping)})
	if err != nil {
		return nil, false, fmt.Errorf("persist stopping session %q: %w", id, err)
	}
	s.setStreamStatus(ctx, sess.StreamID, model.StreamStopping)

	s.mu.Lock()
	tr.status = model.SessionStopping
	tr.stopRequested = true
	s.mu.Unlock()

	if err := tr.handle.Signal(SignalTerminate); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("terminate failed, killing")
		if kerr := tr.handle.Signal(SignalKill); kerr != nil {
			serr := &model.SignalError{SessionID: id, Signal: SignalKill.String(), Err: errors.Join(err, kerr)}
			s.unreachable(ctx, tr, serr)
			return nil, false, serr
		}
		return stopping, true, nil
	}

	s.mu.Lock()
	tr.killTimer = s.clock.AfterFunc(s.cfg.StopGrace, func() { s.escalate(tr) })
	s.mu.Unlock()
	return stopping, true, nil
}

// escalate kills a process that outlived its stop grace period.
func (s *Supervisor) escalate(tr *tracked) {
	if s.lookup(tr.sessionID) != tr || s.hasExited(tr) {
		return
	}
	s.logger.Warn().
		Str(log.FieldSessionID, tr.sessionID).
		Int(log.FieldPID, tr.handle.PID()).
		Dur("grace", s.cfg.StopGrace).
		Msg("encoder ignored terminate, killing")
	if err := tr.handle.Signal(SignalKill); err != nil {
		s.logger.Error().Err(err).Str(log.FieldSessionID, tr.sessionID).Msg("kill failed")
	}
}

// Sessions returns persisted sessions in the given statuses, newest first.
func (s *Supervisor) Sessions(ctx context.Context, statuses ...model.SessionStatus) ([]*model.EncodingSession, error) {
	return s.store.ListSessions(ctx, statuses...)
}

// ListActiveSessionIDs returns the sessions tracked by this process.
func (s *Supervisor) ListActiveSessionIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// ActiveSession returns the session encoding streamID, if any.
func (s *Supervisor) ActiveSession(streamID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byStream[streamID]
	return id, ok
}

// Shutdown stops supervising. With the detach policy processes keep running
// and are re-attached by the next Recover; with terminate every session is
// stopped and its exit awaited.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	trs := make([]*tracked, 0, len(s.active))
	for _, tr := range s.active {
		trs = append(trs, tr)
	}
	s.mu.Unlock()

	for _, tr := range trs {
		if s.cfg.ShutdownPolicy == ShutdownTerminate {
			if _, err := s.Stop(ctx, tr.sessionID); err != nil {
				s.logger.Warn().Err(err).Str(log.FieldSessionID, tr.sessionID).Msg("stop on shutdown failed")
			}
			continue
		}
		tr.detachOnce.Do(func() { close(tr.detach) })
	}

	done := make(chan struct{})
	go func() {
		s.observers.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Int("sessions", len(trs)).Str("policy", s.cfg.ShutdownPolicy).Msg("encoding supervisor stopped")
		return nil
	case <-ctx.Done():
		s.abandonOnce.Do(func() { close(s.abandon) })
		return fmt.Errorf("encoding observer drain timeout: %w", ctx.Err())
	}
}
