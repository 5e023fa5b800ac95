// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package adbreak

import (
	"context"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
)

func (s *Scheduler) publishBreak(ctx context.Context, b *model.AdBreak) {
	if s.publisher == nil {
		return
	}
	ev := ports.AdBreakEvent{
		AdBreakID:   b.ID,
		StreamID:    b.StreamID,
		Status:      string(b.Status),
		EventID:     b.EventID,
		CrashOut:    b.CrashOut,
		TriggeredAt: b.TriggeredAt,
		CompletedAt: b.CompletedAt,
		Timestamp:   s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, ports.TopicAdBreak, ev); err != nil {
		s.logger.Debug().Err(err).Str("topic", ports.TopicAdBreak).Msg("publish failed")
	}
}

func (s *Scheduler) publishMarker(ctx context.Context, m model.CueMarker) {
	if s.publisher == nil {
		return
	}
	ev := ports.MarkerEvent{
		MarkerID:  m.ID,
		AdBreakID: m.AdBreakID,
		StreamID:  m.StreamID,
		Kind:      string(m.Kind),
		Direction: string(m.Direction),
		EventID:   m.EventID,
		PID:       m.PID,
		Payload:   m.PayloadCopy(),
		Timestamp: m.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, ports.TopicMarker, ev); err != nil {
		s.logger.Debug().Err(err).Str("topic", ports.TopicMarker).Msg("publish failed")
	}
}

// audit appends to the operator log; failures are only logged.
func (s *Scheduler) audit(ctx context.Context, level model.AuditLevel, msg string, meta map[string]any) {
	if s.auditLog == nil {
		return
	}
	err := s.auditLog.AppendAudit(ctx, model.AuditEntry{
		Level:     level,
		Component: component,
		Message:   msg,
		Metadata:  meta,
		At:        s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("audit append failed")
	}
}

func breakMeta(b *model.AdBreak) map[string]any {
	meta := map[string]any{
		"adBreakId":     b.ID,
		"streamId":      b.StreamID,
		"status":        string(b.Status),
		"scheduledTime": b.ScheduledTime,
		"durationMs":    b.Duration.Milliseconds(),
	}
	if b.EventID != nil {
		meta["eventId"] = *b.EventID
	}
	return meta
}

func markerMeta(b *model.AdBreak, m model.CueMarker) map[string]any {
	meta := breakMeta(b)
	meta["markerId"] = m.ID
	meta["direction"] = string(m.Direction)
	meta["eventId"] = m.EventID
	if m.CrashOut {
		meta["crashOut"] = true
	}
	return meta
}
