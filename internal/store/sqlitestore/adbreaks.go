// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

const adBreakColumns = `ad_break_id, stream_id, name, scheduled_at_ms, duration_ms, ad_id, description,
	provider_name, provider_id, auto_return_ms, pre_roll_ms, crash_out, scte35_pid, status,
	event_id, triggered_at_ms, completed_at_ms, return_due_at_ms, created_at_ms, updated_at_ms`

const upsertAdBreak = `INSERT OR REPLACE INTO ad_breaks (` + adBreakColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const markerColumns = `marker_id, ad_break_id, stream_id, kind, direction, event_id, duration_ms,
	provider_name, provider_id, auto_return, auto_return_ms, pre_roll_ms, crash_out, pid, payload, created_at_ms`

func adBreakArgs(b *model.AdBreak) []any {
	var eventID sql.NullInt64
	if b.EventID != nil {
		eventID = sql.NullInt64{Int64: int64(*b.EventID), Valid: true}
	}
	return []any{
		b.ID, b.StreamID, b.Name, toMs(b.ScheduledTime), b.Duration.Milliseconds(), b.AdID, b.Description,
		b.ProviderName, b.ProviderID, b.AutoReturn.Milliseconds(), b.PreRollDuration.Milliseconds(),
		boolInt(b.CrashOut), b.SCTE35PID, string(b.Status),
		eventID, nullMs(b.TriggeredAt), nullMs(b.CompletedAt), nullMs(b.ReturnDueAt),
		toMs(b.CreatedAt), toMs(b.UpdatedAt),
	}
}

func scanAdBreak(sc scanner) (*model.AdBreak, error) {
	var (
		b                                     model.AdBreak
		scheduledMs, durationMs, autoReturnMs int64
		preRollMs, createdMs, updatedMs       int64
		crashOut                              int
		status                                string
		eventID                               sql.NullInt64
		triggered, completed, returnDue       sql.NullInt64
	)
	err := sc.Scan(
		&b.ID, &b.StreamID, &b.Name, &scheduledMs, &durationMs, &b.AdID, &b.Description,
		&b.ProviderName, &b.ProviderID, &autoReturnMs, &preRollMs, &crashOut, &b.SCTE35PID, &status,
		&eventID, &triggered, &completed, &returnDue, &createdMs, &updatedMs,
	)
	if err != nil {
		return nil, err
	}
	b.ScheduledTime = fromMs(scheduledMs)
	b.Duration = time.Duration(durationMs) * time.Millisecond
	b.AutoReturn = time.Duration(autoReturnMs) * time.Millisecond
	b.PreRollDuration = time.Duration(preRollMs) * time.Millisecond
	b.CrashOut = crashOut != 0
	b.Status = model.AdBreakStatus(status)
	if eventID.Valid {
		v := uint32(eventID.Int64)
		b.EventID = &v
	}
	b.TriggeredAt = ptrMs(triggered)
	b.CompletedAt = ptrMs(completed)
	b.ReturnDueAt = ptrMs(returnDue)
	b.CreatedAt = fromMs(createdMs)
	b.UpdatedAt = fromMs(updatedMs)
	return &b, nil
}

func getAdBreak(ctx context.Context, q queryer, id string) (*model.AdBreak, error) {
	row := q.QueryRowContext(ctx, `SELECT `+adBreakColumns+` FROM ad_breaks WHERE ad_break_id = ?`, id)
	b, err := scanAdBreak(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "ad break", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load ad break %s: %w", id, err)
	}
	return b, nil
}

func (s *Store) PutAdBreak(ctx context.Context, b *model.AdBreak) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: ad break id required", model.ErrValidation)
	}
	c := b.Clone()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if _, err := s.db.ExecContext(ctx, upsertAdBreak, adBreakArgs(c)...); err != nil {
		return fmt.Errorf("put ad break %s: %w", b.ID, err)
	}
	return nil
}

func (s *Store) GetAdBreak(ctx context.Context, id string) (*model.AdBreak, error) {
	return getAdBreak(ctx, s.db, id)
}

func (s *Store) UpdateAdBreak(ctx context.Context, id string, patch model.AdBreakPatch) (*model.AdBreak, error) {
	var out *model.AdBreak
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getAdBreak(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := patch.Check(b); err != nil {
			return err
		}
		patch.Apply(b, s.now())
		if _, err := tx.ExecContext(ctx, upsertAdBreak, adBreakArgs(b)...); err != nil {
			return fmt.Errorf("update ad break %s: %w", id, err)
		}
		out = b
		return nil
	})
	return out, err
}

func (s *Store) RecordMarker(ctx context.Context, id string, patch model.AdBreakPatch, m model.CueMarker) (*model.AdBreak, error) {
	if m.ID == "" || m.AdBreakID != id {
		return nil, fmt.Errorf("%w: marker %q does not belong to ad break %q", model.ErrValidation, m.ID, id)
	}
	var out *model.AdBreak
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getAdBreak(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := patch.Check(b); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO cue_markers (`+markerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(marker_id) DO NOTHING`,
			m.ID, m.AdBreakID, m.StreamID, string(m.Kind), string(m.Direction), int64(m.EventID),
			m.Duration.Milliseconds(), m.ProviderName, m.ProviderID, boolInt(m.AutoReturn),
			m.AutoReturnDuration.Milliseconds(), m.PreRollDuration.Milliseconds(), boolInt(m.CrashOut),
			m.PID, m.Payload, toMs(m.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append marker %s: %w", m.ID, err)
		}
		patch.Apply(b, s.now())
		if _, err := tx.ExecContext(ctx, upsertAdBreak, adBreakArgs(b)...); err != nil {
			return fmt.Errorf("update ad break %s: %w", id, err)
		}
		out = b
		return nil
	})
	return out, err
}

func (s *Store) ListAdBreaks(ctx context.Context, statuses ...model.AdBreakStatus) ([]*model.AdBreak, error) {
	query := `SELECT ` + adBreakColumns + ` FROM ad_breaks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE ` + inClause("status", len(statuses))
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY scheduled_at_ms ASC, ad_break_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AdBreak
	for rows.Next() {
		b, err := scanAdBreak(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanMarker(sc scanner) (model.CueMarker, error) {
	var (
		m                                 model.CueMarker
		kind, direction                   string
		eventID, durationMs, autoReturnMs int64
		preRollMs, createdMs              int64
		autoReturn, crashOut              int
	)
	err := sc.Scan(
		&m.ID, &m.AdBreakID, &m.StreamID, &kind, &direction, &eventID, &durationMs,
		&m.ProviderName, &m.ProviderID, &autoReturn, &autoReturnMs, &preRollMs, &crashOut,
		&m.PID, &m.Payload, &createdMs,
	)
	if err != nil {
		return m, err
	}
	m.Kind = model.MarkerKind(kind)
	m.Direction = model.CueDirection(direction)
	m.EventID = uint32(eventID)
	m.Duration = time.Duration(durationMs) * time.Millisecond
	m.AutoReturn = autoReturn != 0
	m.AutoReturnDuration = time.Duration(autoReturnMs) * time.Millisecond
	m.PreRollDuration = time.Duration(preRollMs) * time.Millisecond
	m.CrashOut = crashOut != 0
	m.CreatedAt = fromMs(createdMs)
	return m, nil
}

func (s *Store) queryMarkers(ctx context.Context, query string, args ...any) ([]model.CueMarker, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CueMarker
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListMarkers(ctx context.Context, adBreakID string) ([]model.CueMarker, error) {
	return s.queryMarkers(ctx,
		`SELECT `+markerColumns+` FROM cue_markers WHERE ad_break_id = ? ORDER BY event_id ASC`, adBreakID)
}

func (s *Store) LastMarkers(ctx context.Context, limit int) ([]model.CueMarker, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryMarkers(ctx,
		`SELECT `+markerColumns+` FROM cue_markers ORDER BY created_at_ms DESC, event_id DESC LIMIT ?`, limit)
}

// NextEventID consumes one ID from the high-water mark. The increment
// commits on its own so a later failed write leaves a gap, never a reuse.
func (s *Store) NextEventID(ctx context.Context) (uint32, error) {
	var next int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE event_sequence SET next_event_id = next_event_id + 1 WHERE id = 1 RETURNING next_event_id - 1`,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next event id: %w", err)
	}
	if next > math.MaxUint32 {
		return 0, fmt.Errorf("%w: splice event id space exhausted", model.ErrResource)
	}
	return uint32(next), nil
}
