// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ports declares the collaborators the scheduling and supervision
// services depend on.
package ports

import (
	"context"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

// AdBreakStore persists ad breaks. Missing records yield a *model.NotFoundError.
type AdBreakStore interface {
	// PutAdBreak inserts or replaces the record.
	PutAdBreak(ctx context.Context, b *model.AdBreak) error
	GetAdBreak(ctx context.Context, id string) (*model.AdBreak, error)
	UpdateAdBreak(ctx context.Context, id string, patch model.AdBreakPatch) (*model.AdBreak, error)
	// RecordMarker appends m to the marker log and applies patch in one
	// transaction. Appending a marker ID that already exists is a no-op.
	RecordMarker(ctx context.Context, id string, patch model.AdBreakPatch, m model.CueMarker) (*model.AdBreak, error)
	// ListAdBreaks returns breaks in the given statuses (all when empty)
	// ordered by scheduled time ascending.
	ListAdBreaks(ctx context.Context, statuses ...model.AdBreakStatus) ([]*model.AdBreak, error)
}

// MarkerLog reads the append-only cue marker log.
type MarkerLog interface {
	ListMarkers(ctx context.Context, adBreakID string) ([]model.CueMarker, error)
	LastMarkers(ctx context.Context, limit int) ([]model.CueMarker, error)
}

// EventSequencer hands out splice event IDs. Every returned ID is durably
// consumed before it is returned and is never handed out again.
type EventSequencer interface {
	NextEventID(ctx context.Context) (uint32, error)
}

// SessionStore persists encoding sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.EncodingSession) error
	GetSession(ctx context.Context, id string) (*model.EncodingSession, error)
	UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.EncodingSession, error)
	// ListSessions returns sessions in the given statuses (all when empty),
	// newest first.
	ListSessions(ctx context.Context, statuses ...model.SessionStatus) ([]*model.EncodingSession, error)
}

// StreamStore is the stream configuration source and status holder.
type StreamStore interface {
	// PutStream upserts configuration; an existing status is preserved.
	PutStream(ctx context.Context, s *model.Stream) error
	GetStream(ctx context.Context, id string) (*model.Stream, error)
	UpdateStream(ctx context.Context, id string, patch model.StreamPatch) (*model.Stream, error)
	ListStreams(ctx context.Context) ([]*model.Stream, error)
}

// AuditLog records operator-facing system log entries.
type AuditLog interface {
	AppendAudit(ctx context.Context, e model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

// Store is the full persistence surface.
type Store interface {
	AdBreakStore
	MarkerLog
	EventSequencer
	SessionStore
	StreamStore
	AuditLog
	Ping(ctx context.Context) error
	Close() error
}
