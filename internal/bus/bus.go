// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus delivers state-change notifications to in-process
// subscribers and external consumers.
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/ports"
)

// Message is one published notification.
type Message struct {
	Topic   string    `json:"topic"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Subscriber receives messages for one topic until closed.
type Subscriber interface {
	C() <-chan Message
	// Done is closed when the subscription ends.
	Done() <-chan struct{}
	Close() error
}

// Fanout publishes to every member and joins their errors.
type Fanout []ports.Publisher

func (f Fanout) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ ports.Publisher = Fanout(nil)
