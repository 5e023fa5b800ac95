// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// AuditLevel grades an audit entry.
type AuditLevel string

const (
	AuditInfo  AuditLevel = "INFO"
	AuditWarn  AuditLevel = "WARN"
	AuditError AuditLevel = "ERROR"
)

// AuditEntry is one row of the operator-facing system log.
type AuditEntry struct {
	ID        int64
	Level     AuditLevel
	Component string
	Message   string
	Metadata  map[string]any
	At        time.Time
}
