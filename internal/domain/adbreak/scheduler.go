// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package adbreak schedules ad breaks and emits their CUE-OUT and CUE-IN
// markers on time.
package adbreak

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/domain/marker"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/keylock"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
	"github.com/ManuGH/cuepoint/internal/telemetry"
)

const (
	component    = "adbreak"
	tracerName   = "cuepoint.adbreak"
	maxSCTE35PID = 0x1FFF

	defaultCallbackTimeout = 10 * time.Second
	defaultRetryDelay      = 5 * time.Second
	defaultFireAttempts    = 3
)

// ErrClosed is returned by Schedule after Shutdown.
var ErrClosed = fmt.Errorf("%w: ad-break scheduler is shut down", model.ErrResource)

// Store is the persistence the scheduler writes through.
type Store interface {
	ports.AdBreakStore
	ports.MarkerLog
}

// Deps are the scheduler's collaborators. Store and Sequencer are required.
type Deps struct {
	Store     Store
	Sequencer ports.EventSequencer
	Encoder   *marker.Encoder
	Clock     clock.Clock
	Publisher ports.Publisher
	Audit     ports.AuditLog
	// Streams, when set, rejects schedules for unknown streams.
	Streams ports.StreamStore
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMarkerKind selects splice_insert (default) or time_signal markers.
func WithMarkerKind(k model.MarkerKind) Option {
	return func(s *Scheduler) {
		if k != "" {
			s.kind = k
		}
	}
}

// WithCallbackTimeout bounds the store work of one timer callback.
func WithCallbackTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.callbackTimeout = d
		}
	}
}

// WithFireRetry sets how often and how far apart a failed timer callback
// is retried before its break is left for Recover.
func WithFireRetry(attempts int, delay time.Duration) Option {
	return func(s *Scheduler) {
		if attempts > 0 {
			s.fireAttempts = attempts
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// pendingBreak is one armed timer. Entries are immutable once armed; a
// callback only acts while its own entry is the registered one.
type pendingBreak struct {
	streamID string
	phase    string
	due      time.Time
	attempt  int
	timer    clock.Timer
}

// PendingTimer is a diagnostic view of an armed timer.
type PendingTimer struct {
	AdBreakID string    `json:"adBreakId"`
	StreamID  string    `json:"streamId"`
	Phase     string    `json:"phase"`
	DueAt     time.Time `json:"dueAt"`
	Attempt   int       `json:"attempt,omitempty"`
}

// Scheduler owns the ad-break timers and the marker emission sequence.
type Scheduler struct {
	store     Store
	seq       ports.EventSequencer
	enc       *marker.Encoder
	clock     clock.Clock
	publisher ports.Publisher
	auditLog  ports.AuditLog
	streams   ports.StreamStore

	logger          zerolog.Logger
	tracer          trace.Tracer
	kind            model.MarkerKind
	callbackTimeout time.Duration
	retryDelay      time.Duration
	fireAttempts    int

	locks keylock.Mutex
	work  inflight

	mu      sync.Mutex
	pending map[string]*pendingBreak
}

// New builds a Scheduler. Call Recover before serving traffic to re-arm
// persisted breaks.
func New(deps Deps, opts ...Option) (*Scheduler, error) {
	if deps.Store == nil {
		return nil, errors.New("adbreak: store is required")
	}
	if deps.Sequencer == nil {
		return nil, errors.New("adbreak: event sequencer is required")
	}
	s := &Scheduler{
		store:           deps.Store,
		seq:             deps.Sequencer,
		enc:             deps.Encoder,
		clock:           deps.Clock,
		publisher:       deps.Publisher,
		auditLog:        deps.Audit,
		streams:         deps.Streams,
		logger:          log.WithComponent(component),
		tracer:          telemetry.Tracer(tracerName),
		kind:            model.MarkerSpliceInsert,
		callbackTimeout: defaultCallbackTimeout,
		retryDelay:      defaultRetryDelay,
		fireAttempts:    defaultFireAttempts,
		pending:         make(map[string]*pendingBreak),
	}
	if s.enc == nil {
		s.enc = marker.NewEncoder()
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule validates b, persists it as SCHEDULED and arms its trigger
// timer. An empty ID is assigned.
func (s *Scheduler) Schedule(ctx context.Context, b *model.AdBreak) (_ *model.AdBreak, err error) {
	if b == nil {
		return nil, &model.InvalidScheduleError{Reason: "ad break is required"}
	}
	rec := b.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	ctx, span := s.tracer.Start(ctx, "adbreak.schedule",
		trace.WithAttributes(telemetry.AdBreakAttributes(rec.ID, rec.StreamID)...))
	defer func() { telemetry.EndSpan(span, err) }()
	defer func() {
		if err != nil {
			metrics.SchedulerErrors.WithLabelValues("schedule").Inc()
		}
	}()

	if s.work.closed() {
		return nil, ErrClosed
	}
	if err := s.validate(rec, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.checkStream(ctx, rec); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(rec.ID)
	saved, err := s.scheduleLocked(ctx, rec)
	unlock()
	if err != nil {
		return nil, err
	}

	metrics.AdBreakTransitions.WithLabelValues(string(model.AdBreakScheduled)).Inc()
	s.logger.Info().
		Str(log.FieldAdBreakID, saved.ID).
		Str(log.FieldStreamID, saved.StreamID).
		Time(log.FieldDueAt, saved.ScheduledTime).
		Dur(log.FieldDelay, clock.Until(s.clock, saved.ScheduledTime)).
		Str(log.FieldEvent, "adbreak.scheduled").Msg("ad break scheduled")
	s.audit(ctx, model.AuditInfo, "ad break scheduled", breakMeta(saved))
	s.publishBreak(ctx, saved)
	return saved.Clone(), nil
}

func (s *Scheduler) scheduleLocked(ctx context.Context, rec *model.AdBreak) (*model.AdBreak, error) {
	if s.isPending(rec.ID) {
		return nil, &model.DuplicateScheduleError{AdBreakID: rec.ID}
	}
	existing, err := s.store.GetAdBreak(ctx, rec.ID)
	switch {
	case err == nil && existing.Status.Terminal():
		return nil, &model.InvalidScheduleError{AdBreakID: rec.ID, Reason: fmt.Sprintf("ad break is already %s", existing.Status)}
	case err == nil:
		return nil, &model.DuplicateScheduleError{AdBreakID: rec.ID}
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("load ad break %q: %w", rec.ID, err)
	}

	now := s.clock.Now()
	rec.ApplyDefaults()
	rec.Status = model.AdBreakScheduled
	rec.CrashOut = false
	rec.EventID = nil
	rec.TriggeredAt = nil
	rec.CompletedAt = nil
	rec.ReturnDueAt = nil
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := s.store.PutAdBreak(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist ad break %q: %w", rec.ID, err)
	}
	s.armTrigger(rec, 0)
	return rec, nil
}

func (s *Scheduler) validate(b *model.AdBreak, now time.Time) error {
	invalid := func(format string, args ...any) error {
		return &model.InvalidScheduleError{AdBreakID: b.ID, Reason: fmt.Sprintf(format, args...)}
	}
	switch {
	case b.StreamID == "":
		return invalid("stream is required")
	case !b.ScheduledTime.After(now):
		return invalid("scheduled time %s is not after now (%s)", b.ScheduledTime.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	case b.Duration < 0:
		return invalid("duration %s is negative", b.Duration)
	case b.PreRollDuration < 0 || b.PreRollDuration > model.MaxPreRollDuration:
		return invalid("pre-roll %s outside [0, %s]", b.PreRollDuration, model.MaxPreRollDuration)
	case b.AutoReturn < 0:
		return invalid("auto-return %s is negative", b.AutoReturn)
	case b.SCTE35PID < 0 || b.SCTE35PID > maxSCTE35PID:
		return invalid("SCTE-35 PID %d out of range", b.SCTE35PID)
	}
	// A dry run surfaces descriptor problems now instead of at trigger time.
	d := marker.DescriptorFrom(b)
	if _, err := s.enc.Encode(d, s.kind, model.CueOut, model.FirstEventID, now); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func (s *Scheduler) checkStream(ctx context.Context, b *model.AdBreak) error {
	if s.streams == nil {
		return nil
	}
	_, err := s.streams.GetStream(ctx, b.StreamID)
	if errors.Is(err, model.ErrNotFound) {
		return &model.InvalidScheduleError{AdBreakID: b.ID, Reason: fmt.Sprintf("unknown stream %q", b.StreamID)}
	}
	return err
}

// Cancel stops a SCHEDULED break. Terminal breaks are returned unchanged;
// a TRIGGERED break cannot be cancelled, use CrashOut.
func (s *Scheduler) Cancel(ctx context.Context, id string) (_ *model.AdBreak, err error) {
	ctx, span := s.tracer.Start(ctx, "adbreak.cancel",
		trace.WithAttributes(telemetry.AdBreakAttributes(id, "")...))
	defer func() { telemetry.EndSpan(span, err) }()

	unlock := s.locks.Lock(id)
	b, changed, err := s.cancelLocked(ctx, id)
	unlock()
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			metrics.SchedulerErrors.WithLabelValues("cancel").Inc()
		}
		return nil, err
	}
	if !changed {
		return b, nil
	}

	metrics.AdBreakTransitions.WithLabelValues(string(model.AdBreakCancelled)).Inc()
	s.logger.Info().Str(log.FieldAdBreakID, id).Str(log.FieldStreamID, b.StreamID).Str(log.FieldEvent, "adbreak.cancelled").Msg("ad break cancelled")
	s.audit(ctx, model.AuditInfo, "ad break cancelled", breakMeta(b))
	s.publishBreak(ctx, b)
	return b.Clone(), nil
}

func (s *Scheduler) cancelLocked(ctx context.Context, id string) (*model.AdBreak, bool, error) {
	b, err := s.store.GetAdBreak(ctx, id)
	if err != nil {
		return nil, false, err
	}
	switch {
	case b.Status.Terminal():
		return b, false, nil
	case b.Status == model.AdBreakTriggered:
		return nil, false, &model.CannotCancelError{AdBreakID: id, Status: b.Status}
	}

	e := s.take(id)
	updated, err := s.store.UpdateAdBreak(ctx, id, model.AdBreakPatch{Status: model.Ptr(model.AdBreakCancelled)})
	if err != nil {
		if e != nil {
			s.armTrigger(b, e.attempt)
		}
		return nil, false, fmt.Errorf("persist cancel of ad break %q: %w", id, err)
	}
	return updated, true, nil
}

// CrashOut ends a TRIGGERED break now with a crash-out CUE-IN.
func (s *Scheduler) CrashOut(ctx context.Context, id string) (_ *model.AdBreak, err error) {
	ctx, span := s.tracer.Start(ctx, "adbreak.crash_out",
		trace.WithAttributes(telemetry.AdBreakAttributes(id, "")...))
	defer func() { telemetry.EndSpan(span, err) }()

	unlock := s.locks.Lock(id)
	b, m, err := s.crashOutLocked(ctx, id)
	unlock()
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrConflict) {
			metrics.SchedulerErrors.WithLabelValues("crash_out").Inc()
		}
		return nil, err
	}

	s.logger.Warn().
		Str(log.FieldAdBreakID, id).
		Str(log.FieldStreamID, b.StreamID).
		Uint32(log.FieldEventID, m.EventID).
		Str(log.FieldEvent, "adbreak.crash_out").Msg("ad break crashed out")
	s.completed(ctx, b, m, "ad break crashed out")
	return b.Clone(), nil
}

func (s *Scheduler) crashOutLocked(ctx context.Context, id string) (*model.AdBreak, model.CueMarker, error) {
	b, err := s.store.GetAdBreak(ctx, id)
	if err != nil {
		return nil, model.CueMarker{}, err
	}
	if b.Status != model.AdBreakTriggered {
		return nil, model.CueMarker{}, &model.NotActiveError{AdBreakID: id, Status: b.Status}
	}

	s.take(id)
	updated, m, err := s.emitCueIn(ctx, b, true)
	if err != nil {
		s.armReturn(b, 0)
		return nil, model.CueMarker{}, err
	}
	return updated, m, nil
}

// Get returns one ad break.
func (s *Scheduler) Get(ctx context.Context, id string) (*model.AdBreak, error) {
	return s.store.GetAdBreak(ctx, id)
}

// List returns breaks in the given statuses, all when none are given.
func (s *Scheduler) List(ctx context.Context, statuses ...model.AdBreakStatus) ([]*model.AdBreak, error) {
	return s.store.ListAdBreaks(ctx, statuses...)
}

// ListScheduled returns SCHEDULED breaks, earliest first.
func (s *Scheduler) ListScheduled(ctx context.Context) ([]*model.AdBreak, error) {
	return s.store.ListAdBreaks(ctx, model.AdBreakScheduled)
}

// ListActive returns TRIGGERED breaks, earliest first.
func (s *Scheduler) ListActive(ctx context.Context) ([]*model.AdBreak, error) {
	return s.store.ListAdBreaks(ctx, model.AdBreakTriggered)
}

// Markers returns the markers emitted for one break in event ID order.
func (s *Scheduler) Markers(ctx context.Context, id string) ([]model.CueMarker, error) {
	if _, err := s.store.GetAdBreak(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMarkers(ctx, id)
}

// RecentMarkers returns the newest markers across all breaks.
func (s *Scheduler) RecentMarkers(ctx context.Context, limit int) ([]model.CueMarker, error) {
	return s.store.LastMarkers(ctx, limit)
}

// Pending snapshots the armed timers ordered by due time.
func (s *Scheduler) Pending() []PendingTimer {
	s.mu.Lock()
	out := make([]PendingTimer, 0, len(s.pending))
	for id, e := range s.pending {
		out = append(out, PendingTimer{AdBreakID: id, StreamID: e.streamID, Phase: e.phase, DueAt: e.due, Attempt: e.attempt})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].AdBreakID < out[j].AdBreakID
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out
}

// Shutdown disarms every timer and waits for running callbacks. Persisted
// SCHEDULED and TRIGGERED records are picked up again by Recover.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	disarmed := s.disarmAll()
	err := s.work.closeAndWait(ctx)
	disarmed += s.disarmAll()
	s.logger.Info().Int("disarmed", disarmed).Msg("ad-break scheduler stopped")
	return err
}

func (s *Scheduler) disarmAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	for id, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, id)
	}
	s.updateGaugesLocked()
	return n
}
