// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

// Epoch is a millisecond-aligned reference instant for fake clocks.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// AdBreak returns a SCHEDULED break on stream-1 due at `at`.
func AdBreak(id string, at time.Time, duration time.Duration) *model.AdBreak {
	b := &model.AdBreak{
		ID:            id,
		StreamID:      "stream-1",
		Name:          "break " + id,
		ScheduledTime: at,
		Duration:      duration,
		AdID:          "ad-" + id,
		AutoReturn:    duration,
		Status:        model.AdBreakScheduled,
	}
	b.ApplyDefaults()
	return b
}

// Stream returns an IDLE stream with the default encoding profile.
func Stream(id string) *model.Stream {
	cfg := model.DefaultStreamConfig()
	cfg.InputURL = "udp://239.0.0.1:5000"
	cfg.OutputURL = "udp://239.0.1.1:5000"
	return &model.Stream{
		ID:     id,
		Name:   "Stream " + id,
		Status: model.StreamIdle,
		Config: cfg,
	}
}

// Marker returns a CUE-OUT marker for the given break and event ID.
func Marker(id, adBreakID string, eventID uint32, at time.Time) model.CueMarker {
	return model.CueMarker{
		ID:           id,
		StreamID:     "stream-1",
		AdBreakID:    adBreakID,
		Kind:         model.MarkerSpliceInsert,
		Direction:    model.CueOut,
		EventID:      eventID,
		Duration:     30 * time.Second,
		ProviderName: model.DefaultProviderName,
		ProviderID:   model.DefaultProviderID,
		AutoReturn:   true,
		PID:          model.DefaultSCTE35PID,
		Payload:      []byte{0xfc, 0x30, 0x11},
		CreatedAt:    at,
	}
}
