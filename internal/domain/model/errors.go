// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"errors"
	"fmt"
)

// Sentinel error classes. Typed errors below unwrap to one of these so
// callers can classify with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrResource   = errors.New("resource failure")
)

// InvalidScheduleError rejects an ad break that cannot be scheduled.
type InvalidScheduleError struct {
	AdBreakID string
	Reason    string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule for ad break %q: %s", e.AdBreakID, e.Reason)
}

func (e *InvalidScheduleError) Unwrap() error { return ErrValidation }

// DuplicateScheduleError rejects scheduling an ad break that already has pending timers.
type DuplicateScheduleError struct {
	AdBreakID string
}

func (e *DuplicateScheduleError) Error() string {
	return fmt.Sprintf("ad break %q is already scheduled", e.AdBreakID)
}

func (e *DuplicateScheduleError) Unwrap() error { return ErrConflict }

// NotActiveError rejects a crash-out on an ad break that is not TRIGGERED.
type NotActiveError struct {
	AdBreakID string
	Status    AdBreakStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("ad break %q is not active (status %s)", e.AdBreakID, e.Status)
}

func (e *NotActiveError) Unwrap() error { return ErrConflict }

// CannotCancelError rejects cancelling a break that already emitted its CUE-OUT.
type CannotCancelError struct {
	AdBreakID string
	Status    AdBreakStatus
}

func (e *CannotCancelError) Error() string {
	return fmt.Sprintf("ad break %q cannot be cancelled in status %s", e.AdBreakID, e.Status)
}

func (e *CannotCancelError) Unwrap() error { return ErrConflict }

// AlreadyEncodingError rejects a start while the stream has an active session.
type AlreadyEncodingError struct {
	StreamID  string
	SessionID string
}

func (e *AlreadyEncodingError) Error() string {
	return fmt.Sprintf("stream %q is already encoding (session %s)", e.StreamID, e.SessionID)
}

func (e *AlreadyEncodingError) Unwrap() error { return ErrConflict }

// SessionNotActiveError rejects a stop on a session that is not STARTING or RUNNING.
type SessionNotActiveError struct {
	SessionID string
	Status    SessionStatus
}

func (e *SessionNotActiveError) Error() string {
	return fmt.Sprintf("session %q is not active (status %s)", e.SessionID, e.Status)
}

func (e *SessionNotActiveError) Unwrap() error { return ErrConflict }

// SpawnError reports that the transcoder process could not be created.
type SpawnError struct {
	StreamID  string
	SessionID string
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn encoder for stream %q (session %s): %v", e.StreamID, e.SessionID, e.Err)
}

// Unwrap exposes both the resource class and the underlying cause.
func (e *SpawnError) Unwrap() []error { return []error{ErrResource, e.Err} }

// SignalError reports a failure to deliver a termination signal.
type SignalError struct {
	SessionID string
	Signal    string
	Err       error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("deliver %s to session %q: %v", e.Signal, e.SessionID, e.Err)
}

func (e *SignalError) Unwrap() []error { return []error{ErrResource, e.Err} }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ErrorKind is the coarse class an API layer maps to a status code.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindResource
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindResource:
		return "resource"
	default:
		return "internal"
	}
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrResource):
		return KindResource
	default:
		return KindInternal
	}
}

// TransitionError reports a write that would violate a lifecycle table.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %q: illegal transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrConflict }
