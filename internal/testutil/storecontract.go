// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
)

// RunStoreContract exercises the behaviour every ports.Store must share.
// newStore must return an empty store whose clock reads Epoch.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) ports.Store) {
	t.Run("AdBreakRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		b := AdBreak("b1", Epoch.Add(time.Minute), 30*time.Second)
		b.PreRollDuration = 2 * time.Second
		require.NoError(t, s.PutAdBreak(ctx, b))

		got, err := s.GetAdBreak(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, b.ScheduledTime, got.ScheduledTime)
		assert.Equal(t, 30*time.Second, got.Duration)
		assert.Equal(t, 2*time.Second, got.PreRollDuration)
		assert.Equal(t, model.AdBreakScheduled, got.Status)
		assert.Nil(t, got.EventID)
		assert.False(t, got.CreatedAt.IsZero())

		_, err = s.GetAdBreak(ctx, "missing")
		var nf *model.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("UpdateAdBreakEnforcesLifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.PutAdBreak(ctx, AdBreak("b1", Epoch.Add(time.Minute), time.Second)))

		got, err := s.UpdateAdBreak(ctx, "b1", model.AdBreakPatch{Status: model.Ptr(model.AdBreakCancelled)})
		require.NoError(t, err)
		assert.Equal(t, model.AdBreakCancelled, got.Status)

		_, err = s.UpdateAdBreak(ctx, "b1", model.AdBreakPatch{Status: model.Ptr(model.AdBreakTriggered)})
		assert.ErrorIs(t, err, model.ErrConflict)

		_, err = s.UpdateAdBreak(ctx, "nope", model.AdBreakPatch{})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ListAdBreaksOrderedAndFiltered", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.PutAdBreak(ctx, AdBreak("late", Epoch.Add(3*time.Minute), time.Second)))
		require.NoError(t, s.PutAdBreak(ctx, AdBreak("early", Epoch.Add(time.Minute), time.Second)))
		require.NoError(t, s.PutAdBreak(ctx, AdBreak("mid", Epoch.Add(2*time.Minute), time.Second)))
		_, err := s.UpdateAdBreak(ctx, "mid", model.AdBreakPatch{Status: model.Ptr(model.AdBreakCancelled)})
		require.NoError(t, err)

		all, err := s.ListAdBreaks(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"early", "mid", "late"}, []string{all[0].ID, all[1].ID, all[2].ID})

		scheduled, err := s.ListAdBreaks(ctx, model.AdBreakScheduled)
		require.NoError(t, err)
		require.Len(t, scheduled, 2)
		assert.Equal(t, "early", scheduled[0].ID)
		assert.Equal(t, "late", scheduled[1].ID)
	})

	t.Run("RecordMarkerIsAtomicAndIdempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.PutAdBreak(ctx, AdBreak("b1", Epoch, 30*time.Second)))

		m := Marker("m1", "b1", 100000, Epoch)
		patch := model.AdBreakPatch{
			Status:      model.Ptr(model.AdBreakTriggered),
			EventID:     model.Ptr(uint32(100000)),
			TriggeredAt: model.Ptr(Epoch),
			ReturnDueAt: model.Ptr(Epoch.Add(30 * time.Second)),
		}
		got, err := s.RecordMarker(ctx, "b1", patch, m)
		require.NoError(t, err)
		assert.Equal(t, model.AdBreakTriggered, got.Status)
		require.NotNil(t, got.EventID)
		assert.Equal(t, uint32(100000), *got.EventID)
		require.NotNil(t, got.ReturnDueAt)

		// A retried write of the same marker leaves a single row.
		_, err = s.RecordMarker(ctx, "b1", patch, m)
		require.NoError(t, err)

		markers, err := s.ListMarkers(ctx, "b1")
		require.NoError(t, err)
		require.Len(t, markers, 1)
		assert.Equal(t, m.Payload, markers[0].Payload)
		assert.Equal(t, model.CueOut, markers[0].Direction)
		assert.Equal(t, 30*time.Second, markers[0].Duration)

		// Illegal transitions roll back the marker append too.
		bad := Marker("m2", "b1", 100001, Epoch)
		_, err = s.RecordMarker(ctx, "b1", model.AdBreakPatch{Status: model.Ptr(model.AdBreakScheduled)}, bad)
		require.ErrorIs(t, err, model.ErrConflict)
		markers, err = s.ListMarkers(ctx, "b1")
		require.NoError(t, err)
		assert.Len(t, markers, 1)

		_, err = s.RecordMarker(ctx, "b1", model.AdBreakPatch{}, Marker("m3", "other", 100002, Epoch))
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("ClearReturnDue", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		b := AdBreak("b1", Epoch, time.Second)
		b.Status = model.AdBreakTriggered
		b.ReturnDueAt = model.Ptr(Epoch.Add(time.Second))
		require.NoError(t, s.PutAdBreak(ctx, b))

		got, err := s.UpdateAdBreak(ctx, "b1", model.AdBreakPatch{
			Status:         model.Ptr(model.AdBreakCompleted),
			CompletedAt:    model.Ptr(Epoch.Add(time.Second)),
			ClearReturnDue: true,
		})
		require.NoError(t, err)
		assert.Nil(t, got.ReturnDueAt)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("LastMarkersNewestFirst", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.PutAdBreak(ctx, AdBreak("b1", Epoch, time.Second)))
		for i := range 3 {
			m := Marker("m"+string(rune('a'+i)), "b1", uint32(100000+i), Epoch.Add(time.Duration(i)*time.Second))
			_, err := s.RecordMarker(ctx, "b1", model.AdBreakPatch{}, m)
			require.NoError(t, err)
		}
		last, err := s.LastMarkers(ctx, 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, uint32(100002), last[0].EventID)
		assert.Equal(t, uint32(100001), last[1].EventID)
	})

	t.Run("NextEventIDIsMonotonicUnderConcurrency", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		first, err := s.NextEventID(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.FirstEventID, first)

		const workers, per = 4, 25
		var (
			mu   sync.Mutex
			seen = map[uint32]bool{first: true}
			wg   sync.WaitGroup
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range per {
					id, err := s.NextEventID(ctx)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					assert.False(t, seen[id], "event id %d handed out twice", id)
					seen[id] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Len(t, seen, workers*per+1)
	})

	t.Run("SessionLifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		sess := &model.EncodingSession{
			ID:          "s1",
			StreamID:    "stream-1",
			Status:      model.SessionStarting,
			StartedAt:   Epoch,
			LogPath:     "/tmp/encoding_s1.log",
			CommandLine: []string{"/usr/local/bin/ffmpeg", "-i", "in"},
		}
		require.NoError(t, s.CreateSession(ctx, sess))
		assert.ErrorIs(t, s.CreateSession(ctx, sess), model.ErrConflict)

		got, err := s.UpdateSession(ctx, "s1", model.SessionPatch{Status: model.Ptr(model.SessionRunning), PID: model.Ptr(4242)})
		require.NoError(t, err)
		assert.Equal(t, 4242, got.PID)

		got, err = s.UpdateSession(ctx, "s1", model.SessionPatch{
			Status:   model.Ptr(model.SessionCompleted),
			EndedAt:  model.Ptr(Epoch.Add(time.Minute)),
			ExitCode: model.Ptr(0),
			Progress: model.Ptr(100.0),
		})
		require.NoError(t, err)
		require.NotNil(t, got.ExitCode)
		assert.Equal(t, 0, *got.ExitCode)

		_, err = s.UpdateSession(ctx, "s1", model.SessionPatch{Status: model.Ptr(model.SessionRunning)})
		assert.ErrorIs(t, err, model.ErrConflict)

		reloaded, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, sess.CommandLine, reloaded.CommandLine)
		assert.Equal(t, 100.0, reloaded.Progress)

		_, err = s.GetSession(ctx, "nope")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ListSessionsNewestFirst", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i, id := range []string{"old", "new"} {
			require.NoError(t, s.CreateSession(ctx, &model.EncodingSession{
				ID: id, StreamID: "stream-1", Status: model.SessionRunning,
				StartedAt: Epoch.Add(time.Duration(i) * time.Minute),
			}))
		}
		all, err := s.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "new", all[0].ID)

		none, err := s.ListSessions(ctx, model.SessionError)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("PutStreamPreservesStatus", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		st := Stream("stream-1")
		require.NoError(t, s.PutStream(ctx, st))

		_, err := s.UpdateStream(ctx, "stream-1", model.StreamPatch{Status: model.Ptr(model.StreamEncoding)})
		require.NoError(t, err)

		st.Config.Bitrate = 8000
		require.NoError(t, s.PutStream(ctx, st))

		got, err := s.GetStream(ctx, "stream-1")
		require.NoError(t, err)
		assert.Equal(t, model.StreamEncoding, got.Status)
		assert.Equal(t, 8000, got.Config.Bitrate)
		assert.Equal(t, "1920x1080", got.Config.Resolution)

		list, err := s.ListStreams(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = s.UpdateStream(ctx, "nope", model.StreamPatch{})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("AuditNewestFirst", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.AppendAudit(ctx, model.AuditEntry{Component: "scheduler", Message: "first"}))
		require.NoError(t, s.AppendAudit(ctx, model.AuditEntry{
			Level: model.AuditWarn, Component: "supervisor", Message: "second",
			Metadata: map[string]any{"sessionId": "s1"},
		}))

		entries, err := s.ListAudit(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "second", entries[0].Message)
		assert.Equal(t, model.AuditWarn, entries[0].Level)
		assert.Equal(t, "s1", entries[0].Metadata["sessionId"])
		assert.Equal(t, model.AuditInfo, entries[1].Level)
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}
