// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package adbreak

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/log"
)

// RecoveryReport summarizes one Recover pass.
type RecoveryReport struct {
	// Rearmed counts trigger and return timers armed again.
	Rearmed int `json:"rearmed"`
	// Late counts SCHEDULED breaks whose time passed while down.
	Late int `json:"late"`
	// Completed counts TRIGGERED breaks closed immediately because their
	// return was already due.
	Completed int `json:"completed"`
}

// Recover re-arms every persisted SCHEDULED and TRIGGERED break that has no
// timer in this process. Overdue triggers fire immediately; overdue
// returns emit their CUE-IN before Recover returns.
func (s *Scheduler) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	if s.work.closed() {
		return report, ErrClosed
	}
	breaks, err := s.store.ListAdBreaks(ctx, model.AdBreakScheduled, model.AdBreakTriggered)
	if err != nil {
		return report, fmt.Errorf("list ad breaks for recovery: %w", err)
	}

	var errs []error
	for _, b := range breaks {
		if err := s.recoverOne(ctx, b.ID, &report); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info().
		Int("rearmed", report.Rearmed).
		Int("late", report.Late).
		Int("completed", report.Completed).
		Int("failed", len(errs)).
		Msg("ad-break recovery finished")
	return report, errors.Join(errs...)
}

func (s *Scheduler) recoverOne(ctx context.Context, id string, report *RecoveryReport) error {
	unlock := s.locks.Lock(id)
	if s.isPending(id) {
		unlock()
		return nil
	}
	// Reload under the lock; the listing may be stale.
	b, err := s.store.GetAdBreak(ctx, id)
	if err != nil {
		unlock()
		return err
	}
	now := s.clock.Now()

	switch b.Status {
	case model.AdBreakScheduled:
		if !b.ScheduledTime.After(now) {
			report.Late++
			s.logger.Warn().
				Str(log.FieldAdBreakID, id).
				Time(log.FieldDueAt, b.ScheduledTime).
				Dur(log.FieldDelay, now.Sub(b.ScheduledTime)).
				Msg("ad break missed its time while down, triggering late")
		}
		s.armTrigger(b, 0)
		report.Rearmed++
		unlock()
		return nil

	case model.AdBreakTriggered:
		due, ok := b.ReturnDue()
		if ok && due.After(now) {
			s.armReturn(b, 0)
			report.Rearmed++
			unlock()
			return nil
		}
		updated, m, err := s.emitCueIn(ctx, b, false)
		if err != nil {
			s.armReturn(b, 1)
			unlock()
			return fmt.Errorf("complete overdue ad break %q: %w", id, err)
		}
		unlock()
		report.Completed++
		s.logger.Warn().
			Str(log.FieldAdBreakID, id).
			Uint32(log.FieldEventID, m.EventID).
			Str(log.FieldEvent, "adbreak.recovered_completed").Msg("overdue CUE-IN emitted on recovery")
		s.completed(ctx, updated, m, "CUE-IN emitted on recovery")
		return nil

	default:
		unlock()
		return nil
	}
}
