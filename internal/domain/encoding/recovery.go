// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package encoding

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
)

// RecoveryReport summarizes one Recover pass.
type RecoveryReport struct {
	// Attached counts sessions whose process survived and is supervised again.
	Attached int `json:"attached"`
	// Lost counts sessions marked ERROR because their process is gone.
	Lost int `json:"lost"`
}

// Recover reconciles persisted active sessions that this process does not
// track. A live PID is attached and supervised; anything else is ERROR.
func (s *Supervisor) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return report, ErrClosed
	}
	sessions, err := s.store.ListSessions(ctx, model.SessionStarting, model.SessionRunning, model.SessionStopping)
	if err != nil {
		return report, fmt.Errorf("list sessions for recovery: %w", err)
	}

	var errs []error
	for _, sess := range sessions {
		if s.lookup(sess.ID) != nil {
			continue
		}
		attached, err := s.recoverOne(ctx, sess)
		switch {
		case err != nil:
			errs = append(errs, err)
		case attached:
			report.Attached++
		default:
			report.Lost++
		}
	}
	metrics.ActiveSessions.Set(float64(s.activeCount()))

	s.logger.Info().
		Int("attached", report.Attached).
		Int("lost", report.Lost).
		Int("failed", len(errs)).
		Msg("encoding recovery finished")
	return report, errors.Join(errs...)
}

func (s *Supervisor) recoverOne(ctx context.Context, sess *model.EncodingSession) (bool, error) {
	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	if sess.PID > 0 && s.attacher != nil {
		if handle, ok := s.attacher.Attach(sess.PID); ok {
			return true, s.adopt(ctx, sess, handle)
		}
	}

	now := s.clock.Now()
	lost, err := s.store.UpdateSession(ctx, sess.ID, model.SessionPatch{
		Status:  model.Ptr(model.SessionError),
		EndedAt: model.Ptr(now),
		Reason:  model.Ptr(ReasonLost),
	})
	if err != nil {
		return false, fmt.Errorf("mark session %q lost: %w", sess.ID, err)
	}
	s.setStreamStatus(ctx, sess.StreamID, model.StreamError)
	metrics.SessionExits.WithLabelValues(string(model.SessionError), "lost").Inc()
	s.logger.Warn().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldStreamID, sess.StreamID).
		Int(log.FieldPID, sess.PID).
		Str(log.FieldEvent, "session.lost").Msg("encoder process lost across restart")
	s.audit(ctx, model.AuditWarn, "encoding session lost across restart", sessionMeta(lost))
	s.publishSession(ctx, lost)
	s.publishStream(ctx, lost.StreamID, model.StreamError, Progress{})
	return false, nil
}

// adopt resumes supervision of a surviving process.
func (s *Supervisor) adopt(ctx context.Context, sess *model.EncodingSession, handle ProcessHandle) error {
	s.mu.Lock()
	if owner, ok := s.byStream[sess.StreamID]; ok && owner != sess.ID {
		s.mu.Unlock()
		return &model.AlreadyEncodingError{StreamID: sess.StreamID, SessionID: owner}
	}
	s.byStream[sess.StreamID] = sess.ID
	s.mu.Unlock()

	status := sess.Status
	if status == model.SessionStarting {
		if _, err := s.store.UpdateSession(ctx, sess.ID, model.SessionPatch{Status: model.Ptr(model.SessionRunning)}); err != nil {
			s.releaseStream(sess.StreamID, sess.ID)
			return fmt.Errorf("resume session %q: %w", sess.ID, err)
		}
		status = model.SessionRunning
	}

	tr := &tracked{
		sessionID:     sess.ID,
		streamID:      sess.StreamID,
		handle:        handle,
		detach:        make(chan struct{}),
		abort:         make(chan ExitStatus, 1),
		status:        status,
		stopRequested: status == model.SessionStopping,
		progress: Progress{
			Percent:     sess.Progress,
			InputBytes:  sess.InputBytes,
			OutputBytes: sess.OutputBytes,
		},
	}
	s.track(tr)
	s.setStreamStatus(ctx, sess.StreamID, model.StreamStatusFor(status))

	if status == model.SessionStopping {
		// The earlier stop may not have landed before the restart.
		if err := handle.Signal(SignalTerminate); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldSessionID, sess.ID).Msg("re-send terminate")
		}
		s.mu.Lock()
		tr.killTimer = s.clock.AfterFunc(s.cfg.StopGrace, func() { s.escalate(tr) })
		s.mu.Unlock()
	}

	s.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldStreamID, sess.StreamID).
		Int(log.FieldPID, sess.PID).
		Str(log.FieldNewState, string(status)).
		Str(log.FieldEvent, "session.reattached").Msg("re-attached encoder process")
	s.audit(ctx, model.AuditInfo, "encoding session re-attached", sessionMeta(sess))
	return nil
}
