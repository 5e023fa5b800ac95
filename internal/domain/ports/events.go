// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import "time"

// AdBreakEvent is published on TopicAdBreak after every ad-break transition.
type AdBreakEvent struct {
	AdBreakID   string     `json:"adBreakId"`
	StreamID    string     `json:"streamId"`
	Status      string     `json:"status"`
	EventID     *uint32    `json:"eventId,omitempty"`
	CrashOut    bool       `json:"crashOut,omitempty"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// MarkerEvent is published on TopicMarker for every emitted cue marker.
type MarkerEvent struct {
	MarkerID  string    `json:"markerId"`
	AdBreakID string    `json:"adBreakId"`
	StreamID  string    `json:"streamId"`
	Kind      string    `json:"kind"`
	Direction string    `json:"direction"`
	EventID   uint32    `json:"eventId"`
	PID       int       `json:"pid"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEvent is published on TopicSession after every session transition.
type SessionEvent struct {
	SessionID string    `json:"sessionId"`
	StreamID  string    `json:"streamId"`
	Status    string    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamStatusEvent is published on TopicStream when stream status or
// progress changes.
type StreamStatusEvent struct {
	StreamID    string    `json:"streamId"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	InputBytes  int64     `json:"inputBytes"`
	OutputBytes int64     `json:"outputBytes"`
	Timestamp   time.Time `json:"timestamp"`
}
