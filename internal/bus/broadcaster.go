// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
)

// DefaultPublishTimeout bounds one delivery attempt.
const DefaultPublishTimeout = 2 * time.Second

// Broadcaster makes a Publisher best-effort: each publish gets its own
// timeout, and failures are logged and counted but never returned, so a
// slow or absent consumer cannot stall a state transition.
type Broadcaster struct {
	inner   ports.Publisher
	timeout time.Duration
	logger  zerolog.Logger
}

func NewBroadcaster(inner ports.Publisher, timeout time.Duration) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Broadcaster{inner: inner, timeout: timeout, logger: log.WithComponent("broadcast")}
}

func (b *Broadcaster) Publish(ctx context.Context, topic string, payload any) error {
	if b == nil || b.inner == nil {
		return nil
	}
	// Delivery does not follow the caller's cancellation.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	if err := b.inner.Publish(pubCtx, topic, payload); err != nil {
		reason := "error"
		if pubCtx.Err() != nil {
			reason = dropReason(pubCtx.Err())
		}
		metrics.IncBroadcastDrop(topic, reason)
		b.logger.Warn().Err(err).
			Str(log.FieldEvent, "broadcast.failed").
			Str("topic", topic).
			Msg("state-change notification dropped")
		return nil
	}
	metrics.IncBroadcastPublished(topic)
	return nil
}

var _ ports.Publisher = (*Broadcaster)(nil)
