// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

const sessionColumns = `session_id, stream_id, status, started_at_ms, ended_at_ms, progress,
	input_bytes, output_bytes, pid, log_path, command_json, exit_code, reason, updated_at_ms`

const upsertSession = `INSERT OR REPLACE INTO encoding_sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func sessionArgs(s *model.EncodingSession) ([]any, error) {
	cmd := s.CommandLine
	if cmd == nil {
		cmd = []string{}
	}
	cmdJSON, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	var exitCode sql.NullInt64
	if s.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*s.ExitCode), Valid: true}
	}
	return []any{
		s.ID, s.StreamID, string(s.Status), toMs(s.StartedAt), nullMs(s.EndedAt), s.Progress,
		s.InputBytes, s.OutputBytes, s.PID, s.LogPath, string(cmdJSON), exitCode, s.Reason, toMs(s.UpdatedAt),
	}, nil
}

func scanSession(sc scanner) (*model.EncodingSession, error) {
	var (
		s                    model.EncodingSession
		status, cmdJSON      string
		startedMs, updatedMs int64
		endedMs, exitCode    sql.NullInt64
	)
	err := sc.Scan(
		&s.ID, &s.StreamID, &status, &startedMs, &endedMs, &s.Progress,
		&s.InputBytes, &s.OutputBytes, &s.PID, &s.LogPath, &cmdJSON, &exitCode, &s.Reason, &updatedMs,
	)
	if err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	s.StartedAt = fromMs(startedMs)
	s.EndedAt = ptrMs(endedMs)
	s.UpdatedAt = fromMs(updatedMs)
	if exitCode.Valid {
		v := int(exitCode.Int64)
		s.ExitCode = &v
	}
	if err := json.Unmarshal([]byte(cmdJSON), &s.CommandLine); err != nil {
		return nil, fmt.Errorf("decode command line of session %s: %w", s.ID, err)
	}
	return &s, nil
}

func getSession(ctx context.Context, q queryer, id string) (*model.EncodingSession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM encoding_sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return s, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *model.EncodingSession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: session id required", model.ErrValidation)
	}
	c := sess.Clone()
	c.UpdatedAt = s.now()
	if c.StartedAt.IsZero() {
		c.StartedAt = c.UpdatedAt
	}
	args, err := sessionArgs(c)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM encoding_sessions WHERE session_id = ?`, c.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: session %s already exists", model.ErrConflict, c.ID)
		}
		if _, err := tx.ExecContext(ctx, upsertSession, args...); err != nil {
			return fmt.Errorf("create session %s: %w", c.ID, err)
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.EncodingSession, error) {
	return getSession(ctx, s.db, id)
}

func (s *Store) UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.EncodingSession, error) {
	var out *model.EncodingSession
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sess, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := patch.Check(sess); err != nil {
			return err
		}
		patch.Apply(sess, s.now())
		args, err := sessionArgs(sess)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertSession, args...); err != nil {
			return fmt.Errorf("update session %s: %w", id, err)
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *Store) ListSessions(ctx context.Context, statuses ...model.SessionStatus) ([]*model.EncodingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM encoding_sessions`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE ` + inClause("status", len(statuses))
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY started_at_ms DESC, session_id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.EncodingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
