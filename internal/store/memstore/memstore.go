// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package memstore is a volatile ports.Store for tests and for running the
// daemon without a database. Every read and write goes through a copy.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
)

var _ ports.Store = (*Store)(nil)

// Store keeps all state in maps guarded by one mutex.
type Store struct {
	mu        sync.RWMutex
	clock     clock.Clock
	adBreaks  map[string]*model.AdBreak
	markers   []model.CueMarker
	markerIDs map[string]struct{}
	eventIDs  map[uint32]struct{}
	nextEvent uint64
	sessions  map[string]*model.EncodingSession
	streams   map[string]*model.Stream
	audit     []model.AuditEntry
	closed    bool
}

// Option customises a Store.
type Option func(*Store)

// WithClock sets the source of UpdatedAt stamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithFirstEventID moves the start of the event ID sequence.
func WithFirstEventID(id uint32) Option {
	return func(s *Store) { s.nextEvent = uint64(id) }
}

func New(opts ...Option) *Store {
	s := &Store{
		clock:     clock.Real{},
		adBreaks:  make(map[string]*model.AdBreak),
		markerIDs: make(map[string]struct{}),
		eventIDs:  make(map[uint32]struct{}),
		nextEvent: uint64(model.FirstEventID),
		sessions:  make(map[string]*model.EncodingSession),
		streams:   make(map[string]*model.Stream),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) now() time.Time { return s.clock.Now().UTC() }

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("memstore: closed")
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) PutAdBreak(ctx context.Context, b *model.AdBreak) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: ad break id required", model.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := b.Clone()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.adBreaks[c.ID] = c
	return nil
}

func (s *Store) GetAdBreak(ctx context.Context, id string) (*model.AdBreak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.adBreaks[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "ad break", ID: id}
	}
	return b.Clone(), nil
}

func (s *Store) UpdateAdBreak(ctx context.Context, id string, patch model.AdBreakPatch) (*model.AdBreak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.adBreaks[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "ad break", ID: id}
	}
	if err := patch.Check(b); err != nil {
		return nil, err
	}
	patch.Apply(b, s.now())
	return b.Clone(), nil
}

func (s *Store) RecordMarker(ctx context.Context, id string, patch model.AdBreakPatch, m model.CueMarker) (*model.AdBreak, error) {
	if m.ID == "" || m.AdBreakID != id {
		return nil, fmt.Errorf("%w: marker %q does not belong to ad break %q", model.ErrValidation, m.ID, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.adBreaks[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "ad break", ID: id}
	}
	if err := patch.Check(b); err != nil {
		return nil, err
	}
	if _, dup := s.markerIDs[m.ID]; !dup {
		if _, used := s.eventIDs[m.EventID]; used {
			return nil, fmt.Errorf("%w: event id %d already recorded", model.ErrConflict, m.EventID)
		}
		m.Payload = m.PayloadCopy()
		s.markers = append(s.markers, m)
		s.markerIDs[m.ID] = struct{}{}
		s.eventIDs[m.EventID] = struct{}{}
	}
	patch.Apply(b, s.now())
	return b.Clone(), nil
}

func (s *Store) ListAdBreaks(ctx context.Context, statuses ...model.AdBreakStatus) ([]*model.AdBreak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.AdBreak
	for _, b := range s.adBreaks {
		if len(statuses) == 0 || slices.Contains(statuses, b.Status) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ScheduledTime.Before(out[j].ScheduledTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListMarkers(ctx context.Context, adBreakID string) ([]model.CueMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CueMarker
	for _, m := range s.markers {
		if m.AdBreakID == adBreakID {
			m.Payload = m.PayloadCopy()
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}

func (s *Store) LastMarkers(ctx context.Context, limit int) ([]model.CueMarker, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CueMarker, 0, min(limit, len(s.markers)))
	for i := len(s.markers) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.markers[i]
		m.Payload = m.PayloadCopy()
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) NextEventID(ctx context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextEvent > math.MaxUint32 {
		return 0, fmt.Errorf("%w: splice event id space exhausted", model.ErrResource)
	}
	id := uint32(s.nextEvent)
	s.nextEvent++
	return id, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *model.EncodingSession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: session id required", model.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("%w: session %s already exists", model.ErrConflict, sess.ID)
	}
	c := sess.Clone()
	c.UpdatedAt = s.now()
	if c.StartedAt.IsZero() {
		c.StartedAt = c.UpdatedAt
	}
	s.sessions[c.ID] = c
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.EncodingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "session", ID: id}
	}
	return sess.Clone(), nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.EncodingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "session", ID: id}
	}
	if err := patch.Check(sess); err != nil {
		return nil, err
	}
	patch.Apply(sess, s.now())
	return sess.Clone(), nil
}

func (s *Store) ListSessions(ctx context.Context, statuses ...model.SessionStatus) ([]*model.EncodingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.EncodingSession
	for _, sess := range s.sessions {
		if len(statuses) == 0 || slices.Contains(statuses, sess.Status) {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) PutStream(ctx context.Context, st *model.Stream) error {
	if st == nil || st.ID == "" {
		return fmt.Errorf("%w: stream id required", model.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *st
	c.UpdatedAt = s.now()
	if existing, ok := s.streams[st.ID]; ok {
		c.Status = existing.Status
	} else if c.Status == "" {
		c.Status = model.StreamIdle
	}
	s.streams[c.ID] = &c
	return nil
}

func (s *Store) GetStream(ctx context.Context, id string) (*model.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "stream", ID: id}
	}
	c := *st
	return &c, nil
}

func (s *Store) UpdateStream(ctx context.Context, id string, patch model.StreamPatch) (*model.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "stream", ID: id}
	}
	patch.Apply(st, s.now())
	c := *st
	return &c, nil
}

func (s *Store) ListStreams(ctx context.Context) ([]*model.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(s.streams))
	out := make([]*model.Stream, 0, len(ids))
	for _, id := range ids {
		c := *s.streams[id]
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.audit) + 1)
	if e.At.IsZero() {
		e.At = s.now()
	}
	if e.Level == "" {
		e.Level = model.AuditInfo
	}
	e.Metadata = maps.Clone(e.Metadata)
	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, 0, min(limit, len(s.audit)))
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.audit[i]
		e.Metadata = maps.Clone(e.Metadata)
		out = append(out, e)
	}
	return out, nil
}
