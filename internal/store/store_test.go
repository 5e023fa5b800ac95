// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/metrics"
	"github.com/ManuGH/cuepoint/internal/store/memstore"
)

var errTransient = errors.New("database is locked")

// flakyStore fails the first n NextEventID and GetAdBreak calls.
type flakyStore struct {
	ports.Store
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyStore) NextEventID(ctx context.Context) (uint32, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return 0, errTransient
	}
	return f.Store.NextEventID(ctx)
}

func (f *flakyStore) GetAdBreak(ctx context.Context, id string) (*model.AdBreak, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return nil, errTransient
	}
	return f.Store.GetAdBreak(ctx, id)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	inner := &flakyStore{Store: memstore.New()}
	inner.failures.Store(2)
	s := WithRetry(inner, fastPolicy())

	before := prom.ToFloat64(metrics.StoreRetries.WithLabelValues("next_event_id"))
	id, err := s.NextEventID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.FirstEventID, id)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, before+2, prom.ToFloat64(metrics.StoreRetries.WithLabelValues("next_event_id")))
}

func TestWithRetry_GivesUpAfterMaxTries(t *testing.T) {
	inner := &flakyStore{Store: memstore.New()}
	inner.failures.Store(10)
	s := WithRetry(inner, fastPolicy())

	_, err := s.NextEventID(context.Background())
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestWithRetry_NotFoundIsPermanent(t *testing.T) {
	inner := &flakyStore{Store: memstore.New()}
	s := WithRetry(inner, fastPolicy())

	_, err := s.GetAdBreak(context.Background(), "missing")
	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	inner := &flakyStore{Store: memstore.New()}
	inner.failures.Store(10)
	s := WithRetry(inner, RetryPolicy{MaxTries: 50, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.NextEventID(ctx)
	require.Error(t, err)
	assert.Less(t, inner.calls.Load(), int32(50))
}

func TestInstrumented_CountsResults(t *testing.T) {
	s := NewInstrumented(memstore.New(), "test")
	ctx := context.Background()

	okBefore := prom.ToFloat64(metrics.StoreOps.WithLabelValues("test", "get_stream", "success"))
	errBefore := prom.ToFloat64(metrics.StoreOps.WithLabelValues("test", "get_stream", "error"))

	require.NoError(t, s.PutStream(ctx, &model.Stream{ID: "s1"}))
	_, err := s.GetStream(ctx, "s1")
	require.NoError(t, err)
	_, err = s.GetStream(ctx, "s2")
	require.Error(t, err)

	assert.Equal(t, okBefore+1, prom.ToFloat64(metrics.StoreOps.WithLabelValues("test", "get_stream", "success")))
	assert.Equal(t, errBefore+1, prom.ToFloat64(metrics.StoreOps.WithLabelValues("test", "get_stream", "error")))
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	require.NoError(t, mem.Ping(ctx))
	require.NoError(t, mem.Close())

	sq, err := Open(ctx, Options{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "data", "cuepoint.sqlite")})
	require.NoError(t, err)
	require.NoError(t, sq.Ping(ctx))
	require.NoError(t, sq.Close())

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)
}
