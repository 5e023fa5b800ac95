// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import "context"

// Publisher delivers state-change notifications to observers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Broadcast topics.
const (
	TopicAdBreak = "adbreak.update"
	TopicMarker  = "marker.emitted"
	TopicSession = "session.update"
	TopicStream  = "stream.status"
)
