// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldAdBreakID     = "ad_break_id"
	FieldSessionID     = "session_id"
	FieldStreamID      = "stream_id"
	FieldMarkerID      = "marker_id"
	FieldEventID       = "event_id"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"
	FieldSignal    = "signal"
	FieldArgs      = "args"

	// Cue fields
	FieldDirection = "direction"
	FieldKind      = "kind"
	FieldCrashOut  = "crash_out"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Timing fields
	FieldDelay = "delay"
	FieldDueAt = "due_at"

	// Path fields
	FieldPath    = "path"
	FieldLogPath = "log_path"
)
