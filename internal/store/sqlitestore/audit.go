// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlitestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	at := e.At
	if at.IsZero() {
		at = s.now()
	}
	level := e.Level
	if level == "" {
		level = model.AuditInfo
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (level, component, message, metadata_json, at_ms) VALUES (?, ?, ?, ?, ?)`,
		string(level), e.Component, e.Message, string(metaJSON), toMs(at))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries first.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, level, component, message, metadata_json, at_ms FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e        model.AuditEntry
			level    string
			metaJSON string
			atMs     int64
		)
		if err := rows.Scan(&e.ID, &level, &e.Component, &e.Message, &metaJSON, &atMs); err != nil {
			return nil, err
		}
		e.Level = model.AuditLevel(level)
		e.At = fromMs(atMs)
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
