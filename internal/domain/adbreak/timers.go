// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package adbreak

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/domain/marker"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
	"github.com/ManuGH/cuepoint/internal/telemetry"
)

// The arm helpers must be called with the identity's key lock held.

func (s *Scheduler) armTrigger(b *model.AdBreak, attempt int) {
	delay := clock.Until(s.clock, b.ScheduledTime)
	if attempt > 0 {
		delay = s.retryDelay
	}
	s.arm(b.ID, &pendingBreak{
		streamID: b.StreamID,
		phase:    metrics.PhaseTrigger,
		due:      b.ScheduledTime,
		attempt:  attempt,
	}, delay)
}

func (s *Scheduler) armReturn(b *model.AdBreak, attempt int) {
	due, ok := b.ReturnDue()
	if !ok {
		due = s.clock.Now()
	}
	delay := clock.Until(s.clock, due)
	if attempt > 0 {
		delay = s.retryDelay
	}
	s.arm(b.ID, &pendingBreak{
		streamID: b.StreamID,
		phase:    metrics.PhaseReturn,
		due:      due,
		attempt:  attempt,
	}, delay)
}

func (s *Scheduler) arm(id string, e *pendingBreak, delay time.Duration) {
	s.mu.Lock()
	if old := s.pending[id]; old != nil && old.timer != nil {
		old.timer.Stop()
	}
	s.pending[id] = e
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(id, e) })
	s.updateGaugesLocked()
	s.mu.Unlock()
}

// take removes and disarms the registered timer for id, if any.
func (s *Scheduler) take(id string) *pendingBreak {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.pending[id]
	if e == nil {
		return nil
	}
	e.timer.Stop()
	delete(s.pending, id)
	s.updateGaugesLocked()
	return e
}

// release drops e if it is still the registered entry for id.
func (s *Scheduler) release(id string, e *pendingBreak) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[id] == e {
		delete(s.pending, id)
		s.updateGaugesLocked()
	}
}

func (s *Scheduler) current(id string, e *pendingBreak) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id] == e
}

func (s *Scheduler) isPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

func (s *Scheduler) updateGaugesLocked() {
	var triggers, returns int
	for _, e := range s.pending {
		if e.phase == metrics.PhaseReturn {
			returns++
		} else {
			triggers++
		}
	}
	metrics.PendingTimers.WithLabelValues(metrics.PhaseTrigger).Set(float64(triggers))
	metrics.PendingTimers.WithLabelValues(metrics.PhaseReturn).Set(float64(returns))
}

// fire is the timer callback for both phases.
func (s *Scheduler) fire(id string, e *pendingBreak) {
	if !s.work.enter() {
		return
	}
	defer s.work.exit()

	ctx, cancel := context.WithTimeout(context.Background(), s.callbackTimeout)
	defer cancel()

	if e.phase == metrics.PhaseReturn {
		s.triggerReturn(ctx, id, e)
		return
	}
	s.trigger(ctx, id, e)
}

func (s *Scheduler) trigger(ctx context.Context, id string, e *pendingBreak) {
	ctx, span := s.tracer.Start(ctx, "adbreak.trigger",
		trace.WithAttributes(telemetry.AdBreakAttributes(id, e.streamID)...))

	unlock := s.locks.Lock(id)
	b, m, err := s.triggerLocked(ctx, id, e)
	unlock()
	telemetry.EndSpan(span, err)
	if err != nil || b == nil {
		return
	}

	lateness := b.TriggeredAt.Sub(e.due)
	metrics.TriggerLateness.WithLabelValues(metrics.PhaseTrigger).Observe(lateness.Seconds())
	metrics.AdBreakTransitions.WithLabelValues(string(model.AdBreakTriggered)).Inc()
	recordMarkerMetric(m)
	s.logger.Info().
		Str(log.FieldAdBreakID, id).
		Str(log.FieldStreamID, b.StreamID).
		Str(log.FieldMarkerID, m.ID).
		Uint32(log.FieldEventID, m.EventID).
		Str(log.FieldDirection, string(m.Direction)).
		Dur(log.FieldDelay, lateness).
		Str(log.FieldEvent, "adbreak.triggered").Msg("CUE-OUT emitted")
	s.audit(ctx, model.AuditInfo, "CUE-OUT emitted", markerMeta(b, m))
	s.publishMarker(ctx, m)
	s.publishBreak(ctx, b)
}

// triggerLocked returns a nil break when there was nothing to emit.
func (s *Scheduler) triggerLocked(ctx context.Context, id string, e *pendingBreak) (*model.AdBreak, model.CueMarker, error) {
	if !s.current(id, e) {
		return nil, model.CueMarker{}, nil
	}
	b, err := s.store.GetAdBreak(ctx, id)
	if err != nil {
		s.retryOrDrop(ctx, id, e, err)
		return nil, model.CueMarker{}, err
	}
	switch b.Status {
	case model.AdBreakScheduled:
	case model.AdBreakTriggered:
		// An earlier attempt committed but reported failure.
		s.armReturn(b, 0)
		return nil, model.CueMarker{}, nil
	default:
		s.release(id, e)
		return nil, model.CueMarker{}, nil
	}

	now := s.clock.Now()
	eventID, err := s.seq.NextEventID(ctx)
	if err != nil {
		s.retryOrDrop(ctx, id, e, fmt.Errorf("allocate event id: %w", err))
		return nil, model.CueMarker{}, err
	}
	m, err := s.enc.Encode(marker.DescriptorFrom(b), s.kind, model.CueOut, eventID, now)
	if err != nil {
		s.retryOrDrop(ctx, id, e, err)
		return nil, model.CueMarker{}, err
	}
	returnDue := now.Add(b.BreakLength())
	updated, err := s.store.RecordMarker(ctx, id, model.AdBreakPatch{
		Status:      model.Ptr(model.AdBreakTriggered),
		EventID:     model.Ptr(eventID),
		TriggeredAt: model.Ptr(now),
		ReturnDueAt: model.Ptr(returnDue),
	}, m)
	if err != nil {
		s.retryOrDrop(ctx, id, e, err)
		return nil, model.CueMarker{}, err
	}
	s.armReturn(updated, 0)
	return updated, m, nil
}

func (s *Scheduler) triggerReturn(ctx context.Context, id string, e *pendingBreak) {
	ctx, span := s.tracer.Start(ctx, "adbreak.return",
		trace.WithAttributes(telemetry.AdBreakAttributes(id, e.streamID)...))

	unlock := s.locks.Lock(id)
	b, m, err := s.returnLocked(ctx, id, e)
	unlock()
	telemetry.EndSpan(span, err)
	if err != nil || b == nil {
		return
	}

	metrics.TriggerLateness.WithLabelValues(metrics.PhaseReturn).Observe(b.CompletedAt.Sub(e.due).Seconds())
	s.logger.Info().
		Str(log.FieldAdBreakID, id).
		Str(log.FieldStreamID, b.StreamID).
		Str(log.FieldMarkerID, m.ID).
		Uint32(log.FieldEventID, m.EventID).
		Str(log.FieldEvent, "adbreak.completed").Msg("CUE-IN emitted")
	s.completed(ctx, b, m, "CUE-IN emitted")
}

func (s *Scheduler) returnLocked(ctx context.Context, id string, e *pendingBreak) (*model.AdBreak, model.CueMarker, error) {
	if !s.current(id, e) {
		return nil, model.CueMarker{}, nil
	}
	b, err := s.store.GetAdBreak(ctx, id)
	if err != nil {
		s.retryOrDrop(ctx, id, e, err)
		return nil, model.CueMarker{}, err
	}
	if b.Status != model.AdBreakTriggered {
		s.release(id, e)
		return nil, model.CueMarker{}, nil
	}
	updated, m, err := s.emitCueIn(ctx, b, false)
	if err != nil {
		s.retryOrDrop(ctx, id, e, err)
		return nil, model.CueMarker{}, err
	}
	s.release(id, e)
	return updated, m, nil
}

// emitCueIn persists the closing marker and COMPLETED in one write.
func (s *Scheduler) emitCueIn(ctx context.Context, b *model.AdBreak, crashOut bool) (*model.AdBreak, model.CueMarker, error) {
	now := s.clock.Now()
	eventID, err := s.seq.NextEventID(ctx)
	if err != nil {
		return nil, model.CueMarker{}, fmt.Errorf("allocate event id: %w", err)
	}
	d := marker.DescriptorFrom(b)
	d.Duration = 0
	d.CrashOut = crashOut
	m, err := s.enc.Encode(d, s.kind, model.CueIn, eventID, now)
	if err != nil {
		return nil, model.CueMarker{}, err
	}
	patch := model.AdBreakPatch{
		Status:         model.Ptr(model.AdBreakCompleted),
		CompletedAt:    model.Ptr(now),
		ClearReturnDue: true,
	}
	if crashOut {
		patch.CrashOut = model.Ptr(true)
	}
	updated, err := s.store.RecordMarker(ctx, b.ID, patch, m)
	if err != nil {
		return nil, model.CueMarker{}, fmt.Errorf("record CUE-IN for ad break %q: %w", b.ID, err)
	}
	return updated, m, nil
}

// retryOrDrop re-arms a failed callback after the retry delay until the
// attempts are spent. A dropped break keeps its persisted state for Recover.
func (s *Scheduler) retryOrDrop(ctx context.Context, id string, e *pendingBreak, cause error) {
	metrics.SchedulerErrors.WithLabelValues(e.phase).Inc()
	next := e.attempt + 1
	if next < s.fireAttempts && !s.work.closed() {
		s.arm(id, &pendingBreak{streamID: e.streamID, phase: e.phase, due: e.due, attempt: next}, s.retryDelay)
		s.logger.Warn().Err(cause).
			Str(log.FieldAdBreakID, id).
			Str("phase", e.phase).
			Int("attempt", next).
			Dur(log.FieldDelay, s.retryDelay).
			Msg("ad-break timer failed, retrying")
		return
	}
	s.release(id, e)
	s.logger.Error().Err(cause).
		Str(log.FieldAdBreakID, id).
		Str("phase", e.phase).
		Int("attempts", next).
		Msg("ad-break timer failed, left for recovery")
	s.audit(ctx, model.AuditError, fmt.Sprintf("ad break %s failed: %v", e.phase, cause), map[string]any{
		"adBreakId": id,
		"streamId":  e.streamID,
		"phase":     e.phase,
	})
}

// completed reports a persisted CUE-IN.
func (s *Scheduler) completed(ctx context.Context, b *model.AdBreak, m model.CueMarker, msg string) {
	metrics.AdBreakTransitions.WithLabelValues(string(model.AdBreakCompleted)).Inc()
	recordMarkerMetric(m)
	s.audit(ctx, model.AuditInfo, msg, markerMeta(b, m))
	s.publishMarker(ctx, m)
	s.publishBreak(ctx, b)
}

func recordMarkerMetric(m model.CueMarker) {
	crash := "false"
	if m.CrashOut {
		crash = "true"
	}
	metrics.MarkersEmitted.WithLabelValues(string(m.Direction), string(m.Kind), crash).Inc()
}
