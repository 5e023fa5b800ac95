// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package encoding

import (
	"context"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
)

// Status is a session as seen by operators: the persisted record with the
// live tracking data laid over it.
type Status struct {
	SessionID   string              `json:"sessionId"`
	StreamID    string              `json:"streamId"`
	Status      model.SessionStatus `json:"status"`
	Active      bool                `json:"active"`
	Progress    float64             `json:"progress"`
	InputBytes  int64               `json:"inputBytes"`
	OutputBytes int64               `json:"outputBytes"`
	PID         int                 `json:"pid,omitempty"`
	StartedAt   time.Time           `json:"startedAt"`
	EndedAt     *time.Time          `json:"endedAt,omitempty"`
	ExitCode    *int                `json:"exitCode,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	LogPath     string              `json:"logPath,omitempty"`
	CommandLine []string            `json:"commandLine,omitempty"`
}

// GetStatus returns the merged view of one session.
func (s *Supervisor) GetStatus(ctx context.Context, id string) (*Status, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &Status{
		SessionID:   sess.ID,
		StreamID:    sess.StreamID,
		Status:      sess.Status,
		Progress:    sess.Progress,
		InputBytes:  sess.InputBytes,
		OutputBytes: sess.OutputBytes,
		PID:         sess.PID,
		StartedAt:   sess.StartedAt,
		EndedAt:     sess.EndedAt,
		ExitCode:    sess.ExitCode,
		Reason:      sess.Reason,
		LogPath:     sess.LogPath,
		CommandLine: sess.CommandLine,
	}

	s.mu.Lock()
	if tr, ok := s.active[id]; ok {
		st.Active = true
		st.Status = tr.status
		if tr.progress != (Progress{}) {
			st.Progress = tr.progress.Percent
			st.InputBytes = tr.progress.InputBytes
			st.OutputBytes = tr.progress.OutputBytes
		}
	}
	s.mu.Unlock()
	return st, nil
}

func (s *Supervisor) publishSession(ctx context.Context, sess *model.EncodingSession) {
	if s.publisher == nil {
		return
	}
	ev := ports.SessionEvent{
		SessionID: sess.ID,
		StreamID:  sess.StreamID,
		Status:    string(sess.Status),
		PID:       sess.PID,
		ExitCode:  sess.ExitCode,
		Reason:    sess.Reason,
		Timestamp: s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, ports.TopicSession, ev); err != nil {
		s.logger.Debug().Err(err).Str("topic", ports.TopicSession).Msg("publish failed")
	}
}

func (s *Supervisor) publishStream(ctx context.Context, streamID string, st model.StreamStatus, p Progress) {
	if s.publisher == nil {
		return
	}
	ev := ports.StreamStatusEvent{
		StreamID:    streamID,
		Status:      string(st),
		Progress:    p.Percent,
		InputBytes:  p.InputBytes,
		OutputBytes: p.OutputBytes,
		Timestamp:   s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, ports.TopicStream, ev); err != nil {
		s.logger.Debug().Err(err).Str("topic", ports.TopicStream).Msg("publish failed")
	}
}

// audit appends to the operator log; failures are only logged.
func (s *Supervisor) audit(ctx context.Context, level model.AuditLevel, msg string, meta map[string]any) {
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

func sessionMeta(sess *model.EncodingSession) map[string]any {
	meta := map[string]any{
		"sessionId": sess.ID,
		"streamId":  sess.StreamID,
		"status":    string(sess.Status),
	}
	if sess.PID > 0 {
		meta["pid"] = sess.PID
	}
	if sess.ExitCode != nil {
		meta["exitCode"] = *sess.ExitCode
	}
	if sess.Reason != "" {
		meta["reason"] = sess.Reason
	}
	return meta
}
