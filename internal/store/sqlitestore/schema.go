// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlitestore

import (
	"fmt"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/persistence/sqlite"
)

const schemaVersion = 1

var migrations = []sqlite.Migration{
	{
		Version: 1,
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS streams (
				stream_id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				config_json TEXT NOT NULL,
				updated_at_ms INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS ad_breaks (
				ad_break_id TEXT PRIMARY KEY,
				stream_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				scheduled_at_ms INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL,
				ad_id TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				provider_name TEXT NOT NULL,
				provider_id TEXT NOT NULL,
				auto_return_ms INTEGER NOT NULL,
				pre_roll_ms INTEGER NOT NULL,
				crash_out INTEGER NOT NULL DEFAULT 0,
				scte35_pid INTEGER NOT NULL,
				status TEXT NOT NULL,
				event_id INTEGER,
				triggered_at_ms INTEGER,
				completed_at_ms INTEGER,
				return_due_at_ms INTEGER,
				created_at_ms INTEGER NOT NULL,
				updated_at_ms INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_ad_breaks_status_sched ON ad_breaks(status, scheduled_at_ms);`,
			`CREATE TABLE IF NOT EXISTS cue_markers (
				marker_id TEXT PRIMARY KEY,
				ad_break_id TEXT NOT NULL,
				stream_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				direction TEXT NOT NULL,
				event_id INTEGER NOT NULL UNIQUE,
				duration_ms INTEGER NOT NULL,
				provider_name TEXT NOT NULL,
				provider_id TEXT NOT NULL,
				auto_return INTEGER NOT NULL,
				auto_return_ms INTEGER NOT NULL,
				pre_roll_ms INTEGER NOT NULL,
				crash_out INTEGER NOT NULL,
				pid INTEGER NOT NULL,
				payload BLOB NOT NULL,
				created_at_ms INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_cue_markers_break ON cue_markers(ad_break_id, event_id);`,
			`CREATE TABLE IF NOT EXISTS event_sequence (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				next_event_id INTEGER NOT NULL
			);`,
			fmt.Sprintf(`INSERT OR IGNORE INTO event_sequence (id, next_event_id) VALUES (1, %d);`, model.FirstEventID),
			`CREATE TABLE IF NOT EXISTS encoding_sessions (
				session_id TEXT PRIMARY KEY,
				stream_id TEXT NOT NULL,
				status TEXT NOT NULL,
				started_at_ms INTEGER NOT NULL,
				ended_at_ms INTEGER,
				progress REAL NOT NULL DEFAULT 0,
				input_bytes INTEGER NOT NULL DEFAULT 0,
				output_bytes INTEGER NOT NULL DEFAULT 0,
				pid INTEGER NOT NULL DEFAULT 0,
				log_path TEXT NOT NULL DEFAULT '',
				command_json TEXT NOT NULL DEFAULT '[]',
				exit_code INTEGER,
				reason TEXT NOT NULL DEFAULT '',
				updated_at_ms INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_status ON encoding_sessions(status, started_at_ms);`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				level TEXT NOT NULL,
				component TEXT NOT NULL,
				message TEXT NOT NULL,
				metadata_json TEXT NOT NULL DEFAULT '{}',
				at_ms INTEGER NOT NULL
			);`,
		},
	},
}
