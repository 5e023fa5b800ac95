// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// SessionStatus is the lifecycle state of an EncodingSession.
type SessionStatus string

const (
	SessionStarting  SessionStatus = "STARTING"
	SessionRunning   SessionStatus = "RUNNING"
	SessionStopping  SessionStatus = "STOPPING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionError     SessionStatus = "ERROR"
)

// Terminal reports whether the session has finished.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionError
}

// Active reports whether the session occupies its stream's slot.
func (s SessionStatus) Active() bool {
	return s == SessionStarting || s == SessionRunning || s == SessionStopping
}

// SessionTransitions lists every allowed edge of the session lifecycle.
var SessionTransitions = []struct{ From, To SessionStatus }{
	{SessionStarting, SessionRunning},
	{SessionStarting, SessionStopping},
	{SessionStarting, SessionError},
	{SessionRunning, SessionStopping},
	{SessionRunning, SessionCompleted},
	{SessionRunning, SessionError},
	{SessionStopping, SessionCompleted},
	{SessionStopping, SessionError},
}

// CanTransitionSession reports whether from -> to is an allowed edge.
func CanTransitionSession(from, to SessionStatus) bool {
	for _, tr := range SessionTransitions {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}

// EncodingSession is one supervised transcoder run for a stream.
type EncodingSession struct {
	ID          string
	StreamID    string
	Status      SessionStatus
	StartedAt   time.Time
	EndedAt     *time.Time
	Progress    float64
	InputBytes  int64
	OutputBytes int64
	PID         int // 0 until spawned
	LogPath     string
	CommandLine []string
	ExitCode    *int
	Reason      string
	UpdatedAt   time.Time
}

// Clone returns a deep copy.
func (s *EncodingSession) Clone() *EncodingSession {
	if s == nil {
		return nil
	}
	c := *s
	c.EndedAt = cloneTime(s.EndedAt)
	c.CommandLine = append([]string(nil), s.CommandLine...)
	if s.ExitCode != nil {
		v := *s.ExitCode
		c.ExitCode = &v
	}
	return &c
}

// SessionPatch is a partial update. Nil fields are left unchanged.
type SessionPatch struct {
	Status      *SessionStatus
	EndedAt     *time.Time
	Progress    *float64
	InputBytes  *int64
	OutputBytes *int64
	PID         *int
	LogPath     *string
	CommandLine []string
	ExitCode    *int
	Reason      *string
}

// Apply writes the patch onto s and stamps UpdatedAt.
func (p SessionPatch) Apply(s *EncodingSession, now time.Time) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.EndedAt != nil {
		s.EndedAt = cloneTime(p.EndedAt)
	}
	if p.Progress != nil {
		s.Progress = *p.Progress
	}
	if p.InputBytes != nil {
		s.InputBytes = *p.InputBytes
	}
	if p.OutputBytes != nil {
		s.OutputBytes = *p.OutputBytes
	}
	if p.PID != nil {
		s.PID = *p.PID
	}
	if p.LogPath != nil {
		s.LogPath = *p.LogPath
	}
	if p.CommandLine != nil {
		s.CommandLine = append([]string(nil), p.CommandLine...)
	}
	if p.ExitCode != nil {
		v := *p.ExitCode
		s.ExitCode = &v
	}
	if p.Reason != nil {
		s.Reason = *p.Reason
	}
	s.UpdatedAt = now
}

// Check rejects a patch whose status change is not in SessionTransitions.
func (p SessionPatch) Check(s *EncodingSession) error {
	if p.Status == nil || *p.Status == s.Status {
		return nil
	}
	if !CanTransitionSession(s.Status, *p.Status) {
		return &TransitionError{Entity: "session", ID: s.ID, From: string(s.Status), To: string(*p.Status)}
	}
	return nil
}
