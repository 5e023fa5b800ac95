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

const streamColumns = `stream_id, name, status, config_json, updated_at_ms`

func scanStream(sc scanner) (*model.Stream, error) {
	var (
		st         model.Stream
		status     string
		configJSON string
		updatedMs  int64
	)
	if err := sc.Scan(&st.ID, &st.Name, &status, &configJSON, &updatedMs); err != nil {
		return nil, err
	}
	st.Status = model.StreamStatus(status)
	st.UpdatedAt = fromMs(updatedMs)
	if err := json.Unmarshal([]byte(configJSON), &st.Config); err != nil {
		return nil, fmt.Errorf("decode config of stream %s: %w", st.ID, err)
	}
	return &st, nil
}

func getStream(ctx context.Context, q queryer, id string) (*model.Stream, error) {
	row := q.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE stream_id = ?`, id)
	st, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "stream", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load stream %s: %w", id, err)
	}
	return st, nil
}

// PutStream upserts the stream's name and configuration. The status of an
// existing row is left alone; new rows start with st.Status or IDLE.
func (s *Store) PutStream(ctx context.Context, st *model.Stream) error {
	if st == nil || st.ID == "" {
		return fmt.Errorf("%w: stream id required", model.ErrValidation)
	}
	cfg, err := json.Marshal(st.Config)
	if err != nil {
		return err
	}
	status := st.Status
	if status == "" {
		status = model.StreamIdle
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO streams (`+streamColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stream_id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			updated_at_ms = excluded.updated_at_ms`,
		st.ID, st.Name, string(status), string(cfg), toMs(s.now()))
	if err != nil {
		return fmt.Errorf("put stream %s: %w", st.ID, err)
	}
	return nil
}

func (s *Store) GetStream(ctx context.Context, id string) (*model.Stream, error) {
	return getStream(ctx, s.db, id)
}

func (s *Store) UpdateStream(ctx context.Context, id string, patch model.StreamPatch) (*model.Stream, error) {
	var out *model.Stream
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := getStream(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(st, s.now())
		if _, err := tx.ExecContext(ctx, `UPDATE streams SET status = ?, updated_at_ms = ? WHERE stream_id = ?`,
			string(st.Status), toMs(st.UpdatedAt), id); err != nil {
			return fmt.Errorf("update stream %s: %w", id, err)
		}
		out = st
		return nil
	})
	return out, err
}

func (s *Store) ListStreams(ctx context.Context) ([]*model.Stream, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+streamColumns+` FROM streams ORDER BY stream_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
