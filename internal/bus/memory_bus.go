// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
)

// MemoryBus is an in-process pub/sub. A subscriber that does not drain its
// channel blocks publishers until their context ends.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	bufLen int
}

// AllTopics subscribes to every topic.
const AllTopics = "*"

const dropLogEvery = 100

var dropCount atomic.Uint64

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub), bufLen: 64}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload any) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	msg := Message{Topic: topic, Payload: payload, At: time.Now().UTC()}

	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	subs = append(subs, b.subs[AllTopics]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			reason := dropReason(ctx.Err())
			metrics.IncBroadcastDrop(topic, reason)
			if count := dropCount.Add(1); count%dropLogEvery == 0 {
				log.L().Warn().
					Str("topic", topic).
					Str("reason", reason).
					Uint64("dropped", count).
					Msg("memory bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	return nil
}

// Subscribe registers a buffered channel for topic, or every topic when
// topic is AllTopics. The subscription ends when ctx is done or Close is
// called. C is never closed; receivers select on Done as well.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	s := &memSub{
		b:     b,
		topic: topic,
		ch:    make(chan Message, b.bufLen),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = s.Close()
			case <-s.done:
			}
		}()
	}
	return s, nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *memSub) C() <-chan Message { return s.ch }

func (s *memSub) Done() <-chan struct{} { return s.done }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.done)
	})
	return nil
}

var _ ports.Publisher = (*MemoryBus)(nil)
