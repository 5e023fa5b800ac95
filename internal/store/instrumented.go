// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/metrics"
)

// instrumentedStore wraps any ports.Store to capture metrics.
type instrumentedStore struct {
	inner   ports.Store
	backend string
}

func NewInstrumented(inner ports.Store, backend string) ports.Store {
	return &instrumentedStore{inner: inner, backend: backend}
}

func (i *instrumentedStore) observe(op string, start time.Time, err error) {
	res := "success"
	if err != nil {
		res = "error"
	}
	metrics.StoreOps.WithLabelValues(i.backend, op, res).Inc()
	metrics.StoreLatency.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *instrumentedStore) PutAdBreak(ctx context.Context, b *model.AdBreak) (err error) {
	start := time.Now()
	defer func() { i.observe("put_ad_break", start, err) }()
	return i.inner.PutAdBreak(ctx, b)
}

func (i *instrumentedStore) GetAdBreak(ctx context.Context, id string) (b *model.AdBreak, err error) {
	start := time.Now()
	defer func() { i.observe("get_ad_break", start, err) }()
	return i.inner.GetAdBreak(ctx, id)
}

func (i *instrumentedStore) UpdateAdBreak(ctx context.Context, id string, patch model.AdBreakPatch) (b *model.AdBreak, err error) {
	start := time.Now()
	defer func() { i.observe("update_ad_break", start, err) }()
	return i.inner.UpdateAdBreak(ctx, id, patch)
}

func (i *instrumentedStore) RecordMarker(ctx context.Context, id string, patch model.AdBreakPatch, m model.CueMarker) (b *model.AdBreak, err error) {
	start := time.Now()
	defer func() { i.observe("record_marker", start, err) }()
	return i.inner.RecordMarker(ctx, id, patch, m)
}

func (i *instrumentedStore) ListAdBreaks(ctx context.Context, statuses ...model.AdBreakStatus) (list []*model.AdBreak, err error) {
	start := time.Now()
	defer func() { i.observe("list_ad_breaks", start, err) }()
	return i.inner.ListAdBreaks(ctx, statuses...)
}

func (i *instrumentedStore) ListMarkers(ctx context.Context, adBreakID string) (list []model.CueMarker, err error) {
	start := time.Now()
	defer func() { i.observe("list_markers", start, err) }()
	return i.inner.ListMarkers(ctx, adBreakID)
}

func (i *instrumentedStore) LastMarkers(ctx context.Context, limit int) (list []model.CueMarker, err error) {
	start := time.Now()
	defer func() { i.observe("last_markers", start, err) }()
	return i.inner.LastMarkers(ctx, limit)
}

func (i *instrumentedStore) NextEventID(ctx context.Context) (id uint32, err error) {
	start := time.Now()
	defer func() { i.observe("next_event_id", start, err) }()
	return i.inner.NextEventID(ctx)
}

func (i *instrumentedStore) CreateSession(ctx context.Context, s *model.EncodingSession) (err error) {
	start := time.Now()
	defer func() { i.observe("create_session", start, err) }()
	return i.inner.CreateSession(ctx, s)
}

func (i *instrumentedStore) GetSession(ctx context.Context, id string) (s *model.EncodingSession, err error) {
	start := time.Now()
	defer func() { i.observe("get_session", start, err) }()
	return i.inner.GetSession(ctx, id)
}

func (i *instrumentedStore) UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (s *model.EncodingSession, err error) {
	start := time.Now()
	defer func() { i.observe("update_session", start, err) }()
	return i.inner.UpdateSession(ctx, id, patch)
}

func (i *instrumentedStore) ListSessions(ctx context.Context, statuses ...model.SessionStatus) (list []*model.EncodingSession, err error) {
	start := time.Now()
	defer func() { i.observe("list_sessions", start, err) }()
	return i.inner.ListSessions(ctx, statuses...)
}

func (i *instrumentedStore) PutStream(ctx context.Context, s *model.Stream) (err error) {
	start := time.Now()
	defer func() { i.observe("put_stream", start, err) }()
	return i.inner.PutStream(ctx, s)
}

func (i *instrumentedStore) GetStream(ctx context.Context, id string) (s *model.Stream, err error) {
	start := time.Now()
	defer func() { i.observe("get_stream", start, err) }()
	return i.inner.GetStream(ctx, id)
}

func (i *instrumentedStore) UpdateStream(ctx context.Context, id string, patch model.StreamPatch) (s *model.Stream, err error) {
	start := time.Now()
	defer func() { i.observe("update_stream", start, err) }()
	return i.inner.UpdateStream(ctx, id, patch)
}

func (i *instrumentedStore) ListStreams(ctx context.Context) (list []*model.Stream, err error) {
	start := time.Now()
	defer func() { i.observe("list_streams", start, err) }()
	return i.inner.ListStreams(ctx)
}

func (i *instrumentedStore) AppendAudit(ctx context.Context, e model.AuditEntry) (err error) {
	start := time.Now()
	defer func() { i.observe("append_audit", start, err) }()
	return i.inner.AppendAudit(ctx, e)
}

func (i *instrumentedStore) ListAudit(ctx context.Context, limit int) (list []model.AuditEntry, err error) {
	start := time.Now()
	defer func() { i.observe("list_audit", start, err) }()
	return i.inner.ListAudit(ctx, limit)
}

func (i *instrumentedStore) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { i.observe("ping", start, err) }()
	return i.inner.Ping(ctx)
}

func (i *instrumentedStore) Close() error { return i.inner.Close() }
