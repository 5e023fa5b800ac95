// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/metrics"
	"github.com/ManuGH/cuepoint/internal/resilience"
)

func TestMemoryBus_DeliversToTopicAndWildcard(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewMemoryBus()
	ctx := context.Background()

	markers, err := b.Subscribe(ctx, ports.TopicMarker)
	require.NoError(t, err)
	defer markers.Close()
	all, err := b.Subscribe(ctx, AllTopics)
	require.NoError(t, err)
	defer all.Close()

	require.NoError(t, b.Publish(ctx, ports.TopicMarker, "cue-out"))
	require.NoError(t, b.Publish(ctx, ports.TopicSession, "running"))

	got := <-markers.C()
	assert.Equal(t, ports.TopicMarker, got.Topic)
	assert.Equal(t, "cue-out", got.Payload)
	assert.Empty(t, markers.C())

	first, second := <-all.C(), <-all.C()
	assert.Equal(t, ports.TopicMarker, first.Topic)
	assert.Equal(t, ports.TopicSession, second.Topic)
}

func TestMemoryBus_PublishTimeoutCountsDrop(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", i))
	}

	before := prom.ToFloat64(metrics.BroadcastDroppedTotal.WithLabelValues("topic", "timeout"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", "blocked")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, before+1, prom.ToFloat64(metrics.BroadcastDroppedTotal.WithLabelValues("topic", "timeout")))
}

func TestMemoryBus_ClosedSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	for i := 0; i < 2*cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", i))
	}
}

func TestMemoryBus_ContextEndsSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "topic")
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestMemoryBus_RejectsNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	err := NewMemoryBus().Publish(nil, "topic", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context is nil")
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, string, any) error { return f.err }

func TestFanout_JoinsErrors(t *testing.T) {
	mem := NewMemoryBus()
	sub, err := mem.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	defer sub.Close()

	boom := errors.New("boom")
	err = Fanout{mem, nil, failingPublisher{boom}}.Publish(context.Background(), "t", 1)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, (<-sub.C()).Payload)
}

func TestBroadcaster_SwallowsFailures(t *testing.T) {
	before := prom.ToFloat64(metrics.BroadcastDroppedTotal.WithLabelValues("t", "error"))
	b := NewBroadcaster(failingPublisher{errors.New("down")}, time.Second)

	require.NoError(t, b.Publish(context.Background(), "t", 1))
	assert.Equal(t, before+1, prom.ToFloat64(metrics.BroadcastDroppedTotal.WithLabelValues("t", "error")))
}

func TestBroadcaster_IgnoresCallerCancellation(t *testing.T) {
	mem := NewMemoryBus()
	sub, err := mem.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewBroadcaster(mem, time.Second).Publish(ctx, "t", "still sent"))
	assert.Equal(t, "still sent", (<-sub.C()).Payload)
}

func TestBroadcaster_NilInnerIsNoop(t *testing.T) {
	var b *Broadcaster
	assert.NoError(t, b.Publish(context.Background(), "t", 1))
	assert.NoError(t, NewBroadcaster(nil, 0).Publish(context.Background(), "t", 1))
}

func TestRedisPublisher_PublishesJSONEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub, err := NewRedisPublisher(ctx, RedisConfig{Addr: mr.Addr(), Prefix: "test"}, zerolog.Nop())
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.HealthCheck(ctx))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ps := client.Subscribe(ctx, pub.Channel(ports.TopicAdBreak))
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	event := ports.AdBreakEvent{AdBreakID: "b1", StreamID: "s1", Status: "TRIGGERED"}
	require.NoError(t, pub.Publish(ctx, ports.TopicAdBreak, event))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, "test:adbreak.update", msg.Channel)

	var env struct {
		Topic   string             `json:"topic"`
		Payload ports.AdBreakEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, ports.TopicAdBreak, env.Topic)
	assert.Equal(t, "b1", env.Payload.AdBreakID)
}

func TestNewRedisPublisher_FailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisPublisher(context.Background(), RedisConfig{Addr: addr}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRedisPublisher_BreakerStopsPublishingWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	pub, err := NewRedisPublisher(ctx, RedisConfig{
		Addr:             mr.Addr(),
		BreakerThreshold: 2,
		BreakerReset:     time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer pub.Close()
	mr.Close()

	for range 2 {
		err := pub.Publish(ctx, ports.TopicMarker, "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	err = pub.Publish(ctx, ports.TopicMarker, "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
