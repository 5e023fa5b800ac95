// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// MarkerKind is the splice command family a marker is carried in.
type MarkerKind string

const (
	MarkerSpliceInsert MarkerKind = "splice_insert"
	MarkerTimeSignal   MarkerKind = "time_signal"
)

// CueDirection distinguishes break start from break end.
type CueDirection string

const (
	CueOut CueDirection = "CUE-OUT"
	CueIn  CueDirection = "CUE-IN"
)

// CueMarker is one emitted signalling event. It is never modified after
// construction.
type CueMarker struct {
	ID                 string
	StreamID           string
	AdBreakID          string
	Kind               MarkerKind
	Direction          CueDirection
	EventID            uint32
	Duration           time.Duration
	ProviderName       string
	ProviderID         string
	AutoReturn         bool
	AutoReturnDuration time.Duration
	PreRollDuration    time.Duration
	CrashOut           bool
	PID                int
	Payload            []byte
	CreatedAt          time.Time
}

// PayloadCopy returns the payload bytes without sharing the backing array.
func (m CueMarker) PayloadCopy() []byte {
	return append([]byte(nil), m.Payload...)
}
