// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package encoding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
)

// tailLines is how much stderr an ERROR reason carries.
const tailLines = 3

const (
	exitRetryInitial = time.Second
	exitRetryMax     = 30 * time.Second
)

// tailer is implemented by handles that keep recent stderr output.
type tailer interface {
	Tail(n int) []string
}

// observe waits for the process to end and writes the terminal status.
// It is the only writer of COMPLETED and ERROR for a launched session.
func (s *Supervisor) observe(tr *tracked) {
	defer s.observers.Done()

	var st ExitStatus
	select {
	case got, ok := <-tr.handle.Exited():
		st = got
		if !ok {
			st = ExitStatus{Err: errors.New("exit status channel closed")}
		}
	case st = <-tr.abort:
	case <-tr.detach:
		if r, ok := tr.handle.(releaser); ok {
			r.Release()
		}
		if s.lookup(tr.sessionID) != tr {
			// Already finished by the error path.
			return
		}
		s.untrack(tr)
		metrics.ActiveSessions.Set(float64(s.activeCount()))
		s.logger.Info().
			Str(log.FieldSessionID, tr.sessionID).
			Int(log.FieldPID, tr.handle.PID()).
			Str(log.FieldEvent, "session.detached").Msg("encoder detached")
		return
	}
	s.markExited(tr)
	s.settle(tr, st)
}

// settle persists the terminal status of an exited process, retrying with
// backoff until the write lands. The session stays tracked meanwhile so
// its stream cannot be started twice.
func (s *Supervisor) settle(tr *tracked, st ExitStatus) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = exitRetryInitial
	b.MaxInterval = exitRetryMax

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		unlock := s.locks.Lock(tr.sessionID)
		if s.lookup(tr.sessionID) != tr {
			// Already finished by the error path.
			unlock()
			cancel()
			return
		}
		sess, err := s.finishLocked(ctx, tr, st)
		unlock()
		if err == nil {
			s.reportExit(ctx, sess)
			cancel()
			return
		}
		cancel()

		delay := b.NextBackOff()
		if delay == backoff.Stop || !s.waitRetry(tr, delay) {
			s.logger.Error().Err(err).
				Str(log.FieldSessionID, tr.sessionID).
				Int("attempts", attempt).
				Msg("session exit not persisted, left for recovery")
			s.untrack(tr)
			metrics.ActiveSessions.Set(float64(s.activeCount()))
			return
		}
		metrics.SessionExitRetries.Inc()
		s.logger.Warn().Err(err).
			Str(log.FieldSessionID, tr.sessionID).
			Int("attempt", attempt).
			Dur(log.FieldDelay, delay).
			Msg("persist session exit failed, retrying")
	}
}

// waitRetry sleeps d on the supervisor clock. It reports false when the
// session is detached or the shutdown drain gives up first.
func (s *Supervisor) waitRetry(tr *tracked, d time.Duration) bool {
	fired := make(chan struct{})
	t := s.clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-tr.detach:
	case <-s.abandon:
	}
	t.Stop()
	return false
}

// markExited records that the process is gone so Stop and escalate leave
// it alone.
func (s *Supervisor) markExited(tr *tracked) {
	s.mu.Lock()
	tr.exited = true
	if tr.killTimer != nil {
		tr.killTimer.Stop()
		tr.killTimer = nil
	}
	s.mu.Unlock()
}

// unreachable is the error path for a process that cannot be signalled.
// Callers hold the session lock. A failed write is handed to the observer
// for retry.
func (s *Supervisor) unreachable(ctx context.Context, tr *tracked, cause error) {
	st := ExitStatus{Err: cause}
	s.markExited(tr)
	sess, err := s.finishLocked(context.WithoutCancel(ctx), tr, st)
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldSessionID, tr.sessionID).Msg("persist unreachable session, retrying")
		select {
		case tr.abort <- st:
		default:
		}
		return
	}
	tr.detachOnce.Do(func() { close(tr.detach) })
	s.reportExit(ctx, sess)
}

// finishLocked maps st to a terminal status and persists it together with
// the stream status. The session is untracked only once the write lands.
func (s *Supervisor) finishLocked(ctx context.Context, tr *tracked, st ExitStatus) (*model.EncodingSession, error) {
	s.mu.Lock()
	stopRequested := tr.stopRequested
	progress := tr.progress
	s.mu.Unlock()

	status, reason, label := classifyExit(st, stopRequested)
	if status == model.SessionError {
		if t, ok := tr.handle.(tailer); ok {
			if lines := t.Tail(tailLines); len(lines) > 0 {
				reason += ": " + strings.Join(lines, " | ")
			}
		}
	}

	now := s.clock.Now()
	patch := model.SessionPatch{
		Status:      model.Ptr(status),
		EndedAt:     model.Ptr(now),
		Reason:      model.Ptr(reason),
		InputBytes:  model.Ptr(progress.InputBytes),
		OutputBytes: model.Ptr(progress.OutputBytes),
	}
	if st.Err == nil && !st.Unknown {
		patch.ExitCode = model.Ptr(st.Code)
	}
	if st.Success() {
		patch.Progress = model.Ptr(100.0)
	} else if progress.Percent > 0 {
		patch.Progress = model.Ptr(progress.Percent)
	}

	sess, err := s.store.UpdateSession(ctx, tr.sessionID, patch)
	if err != nil {
		return nil, fmt.Errorf("persist %s for session %q: %w", status, tr.sessionID, err)
	}
	s.setStreamStatus(ctx, tr.streamID, model.StreamStatusFor(status))
	s.publishExit(ctx, sess)
	// The stream is free for a new session only after its exit is out.
	s.untrack(tr)
	metrics.SessionExits.WithLabelValues(string(status), label).Inc()
	metrics.ActiveSessions.Set(float64(s.activeCount()))
	return sess, nil
}

// classifyExit maps an exit to a session status, a reason and a metric label.
func classifyExit(st ExitStatus, stopRequested bool) (model.SessionStatus, string, string) {
	switch {
	case st.Err != nil:
		return model.SessionError, "process unreachable: " + st.Err.Error(), "unreachable"
	case st.Success():
		return model.SessionCompleted, "exited normally", "exit_ok"
	case stopRequested && (st.stoppedBySignal() || st.Unknown):
		return model.SessionCompleted, "stopped by operator", "stopped"
	case st.Unknown && st.Signal == "":
		return model.SessionError, "process exited with unknown status", "exit_unknown"
	case st.Signal != "":
		return model.SessionError, "terminated by " + st.Signal, "signal"
	default:
		return model.SessionError, fmt.Sprintf("exited with code %d", st.Code), "exit_code"
	}
}

func (s *Supervisor) reportExit(ctx context.Context, sess *model.EncodingSession) {
	ev := s.logger.Info()
	level := model.AuditInfo
	if sess.Status == model.SessionError {
		ev = s.logger.Error()
		level = model.AuditError
	}
	if sess.ExitCode != nil {
		ev = ev.Int(log.FieldExitCode, *sess.ExitCode)
	}
	ev.Str(log.FieldSessionID, sess.ID).
		Str(log.FieldStreamID, sess.StreamID).
		Str(log.FieldNewState, string(sess.Status)).
		Str("reason", sess.Reason).
		Str(log.FieldEvent, "session.exited").Msg("encoder exited")

	s.audit(ctx, level, "encoding "+strings.ToLower(string(sess.Status))+": "+sess.Reason, sessionMeta(sess))
}

func (s *Supervisor) publishExit(ctx context.Context, sess *model.EncodingSession) {
	s.publishSession(ctx, sess)
	s.publishStream(ctx, sess.StreamID, model.StreamStatusFor(sess.Status), Progress{
		Percent:     sess.Progress,
		InputBytes:  sess.InputBytes,
		OutputBytes: sess.OutputBytes,
	})
}

// onProgress records a progress report and persists it at most once per
// ProgressInterval.
func (s *Supervisor) onProgress(id string, p Progress) {
	s.mu.Lock()
	tr := s.active[id]
	if tr == nil {
		s.mu.Unlock()
		return
	}
	if delta := p.OutputBytes - tr.progress.OutputBytes; delta > 0 {
		metrics.EncoderOutputBytes.Add(float64(delta))
	}
	tr.progress = p
	now := s.clock.Now()
	persist := now.Sub(tr.lastPersist) >= s.cfg.ProgressInterval
	if persist {
		tr.lastPersist = now
	}
	streamID := tr.streamID
	s.mu.Unlock()

	if !persist {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	unlock := s.locks.Lock(id)
	defer unlock()
	if tr := s.lookup(id); tr == nil || s.hasExited(tr) {
		return
	}
	_, err := s.store.UpdateSession(ctx, id, model.SessionPatch{
		Progress:    model.Ptr(p.Percent),
		InputBytes:  model.Ptr(p.InputBytes),
		OutputBytes: model.Ptr(p.OutputBytes),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("persist progress")
		return
	}
	s.publishStream(ctx, streamID, model.StreamEncoding, p)
}

func (s *Supervisor) setStreamStatus(ctx context.Context, streamID string, st model.StreamStatus) {
	if _, err := s.store.UpdateStream(ctx, streamID, model.StreamPatch{Status: model.Ptr(st)}); err != nil {
		s.logger.Error().Err(err).
			Str(log.FieldStreamID, streamID).
			Str(log.FieldNewState, string(st)).
			Msg("persist stream status")
	}
}
