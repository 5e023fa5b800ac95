// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
)

// RetryPolicy bounds how transient store failures are retried.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries three times within roughly a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

type retryingStore struct {
	inner  ports.Store
	policy RetryPolicy
	logger zerolog.Logger
}

// WithRetry wraps inner so transient failures are retried with exponential
// backoff. Not-found, validation, conflict and context errors are returned
// immediately. Marker appends are keyed by marker ID, so a retry after an
// ambiguous failure cannot duplicate a marker.
func WithRetry(inner ports.Store, policy RetryPolicy) ports.Store {
	if policy.MaxTries == 0 {
		policy = DefaultRetryPolicy()
	}
	return &retryingStore{
		inner:  inner,
		policy: policy,
		logger: log.WithComponent("store"),
	}
}

func permanent(err error) bool {
	return errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrValidation) ||
		errors.Is(err, model.ErrConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func retry[T any](ctx context.Context, r *retryingStore, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && permanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.StoreRetries.WithLabelValues(op).Inc()
			r.logger.Warn().Err(err).
				Str(log.FieldEvent, "store.retry").
				Str("op", op).
				Dur("backoff", next).
				Msg("transient store failure, retrying")
		}),
	)
}

func retryErr(ctx context.Context, r *retryingStore, op string, fn func() error) error {
	_, err := retry(ctx, r, op, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (r *retryingStore) PutAdBreak(ctx context.Context, b *model.AdBreak) error {
	return retryErr(ctx, r, "put_ad_break", func() error { return r.inner.PutAdBreak(ctx, b) })
}

func (r *retryingStore) GetAdBreak(ctx context.Context, id string) (*model.AdBreak, error) {
	return retry(ctx, r, "get_ad_break", func() (*model.AdBreak, error) { return r.inner.GetAdBreak(ctx, id) })
}

func (r *retryingStore) UpdateAdBreak(ctx context.Context, id string, patch model.AdBreakPatch) (*model.AdBreak, error) {
	return retry(ctx, r, "update_ad_break", func() (*model.AdBreak, error) {
		return r.inner.UpdateAdBreak(ctx, id, patch)
	})
}

func (r *retryingStore) RecordMarker(ctx context.Context, id string, patch model.AdBreakPatch, m model.CueMarker) (*model.AdBreak, error) {
	return retry(ctx, r, "record_marker", func() (*model.AdBreak, error) {
		return r.inner.RecordMarker(ctx, id, patch, m)
	})
}

func (r *retryingStore) ListAdBreaks(ctx context.Context, statuses ...model.AdBreakStatus) ([]*model.AdBreak, error) {
	return retry(ctx, r, "list_ad_breaks", func() ([]*model.AdBreak, error) {
		return r.inner.ListAdBreaks(ctx, statuses...)
	})
}

func (r *retryingStore) ListMarkers(ctx context.Context, adBreakID string) ([]model.CueMarker, error) {
	return retry(ctx, r, "list_markers", func() ([]model.CueMarker, error) {
		return r.inner.ListMarkers(ctx, adBreakID)
	})
}

func (r *retryingStore) LastMarkers(ctx context.Context, limit int) ([]model.CueMarker, error) {
	return retry(ctx, r, "last_markers", func() ([]model.CueMarker, error) {
		return r.inner.LastMarkers(ctx, limit)
	})
}

func (r *retryingStore) NextEventID(ctx context.Context) (uint32, error) {
	return retry(ctx, r, "next_event_id", func() (uint32, error) { return r.inner.NextEventID(ctx) })
}

func (r *retryingStore) CreateSession(ctx context.Context, s *model.EncodingSession) error {
	return retryErr(ctx, r, "create_session", func() error { return r.inner.CreateSession(ctx, s) })
}

func (r *retryingStore) GetSession(ctx context.Context, id string) (*model.EncodingSession, error) {
	return retry(ctx, r, "get_session", func() (*model.EncodingSession, error) { return r.inner.GetSession(ctx, id) })
}

func (r *retryingStore) UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.EncodingSession, error) {
	return retry(ctx, r, "update_session", func() (*model.EncodingSession, error) {
		return r.inner.UpdateSession(ctx, id, patch)
	})
}

func (r *retryingStore) ListSessions(ctx context.Context, statuses ...model.SessionStatus) ([]*model.EncodingSession, error) {
	return retry(ctx, r, "list_sessions", func() ([]*model.EncodingSession, error) {
		return r.inner.ListSessions(ctx, statuses...)
	})
}

func (r *retryingStore) PutStream(ctx context.Context, s *model.Stream) error {
	return retryErr(ctx, r, "put_stream", func() error { return r.inner.PutStream(ctx, s) })
}

func (r *retryingStore) GetStream(ctx context.Context, id string) (*model.Stream, error) {
	return retry(ctx, r, "get_stream", func() (*model.Stream, error) { return r.inner.GetStream(ctx, id) })
}

func (r *retryingStore) UpdateStream(ctx context.Context, id string, patch model.StreamPatch) (*model.Stream, error) {
	return retry(ctx, r, "update_stream", func() (*model.Stream, error) {
		return r.inner.UpdateStream(ctx, id, patch)
	})
}

func (r *retryingStore) ListStreams(ctx context.Context) ([]*model.Stream, error) {
	return retry(ctx, r, "list_streams", func() ([]*model.Stream, error) { return r.inner.ListStreams(ctx) })
}

func (r *retryingStore) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	return retryErr(ctx, r, "append_audit", func() error { return r.inner.AppendAudit(ctx, e) })
}

func (r *retryingStore) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	return retry(ctx, r, "list_audit", func() ([]model.AuditEntry, error) { return r.inner.ListAudit(ctx, limit) })
}

func (r *retryingStore) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }

func (r *retryingStore) Close() error { return r.inner.Close() }
