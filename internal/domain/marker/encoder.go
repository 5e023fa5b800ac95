// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package marker turns ad-break descriptors into immutable cue markers.
package marker

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/scte35"
)

// maxBreakTicks is the largest value a 33-bit break_duration can carry.
const maxBreakTicks = 1<<33 - 1

// markerNamespace seeds the name-based marker IDs.
var markerNamespace = uuid.MustParse("4f0c2f9e-6d0a-4c57-9a53-2b1d5e3c7a10")

// Descriptor is the ad-break data a marker is built from.
type Descriptor struct {
	AdBreakID       string
	StreamID        string
	AdID            string
	Duration        time.Duration
	ProviderName    string
	ProviderID      string
	AutoReturn      time.Duration
	PreRollDuration time.Duration
	CrashOut        bool
	PID             int
}

// DescriptorFrom copies the marker-relevant fields of b.
func DescriptorFrom(b *model.AdBreak) Descriptor {
	return Descriptor{
		AdBreakID:       b.ID,
		StreamID:        b.StreamID,
		AdID:            b.AdID,
		Duration:        b.Duration,
		ProviderName:    b.ProviderName,
		ProviderID:      b.ProviderID,
		AutoReturn:      b.AutoReturn,
		PreRollDuration: b.PreRollDuration,
		CrashOut:        b.CrashOut,
		PID:             b.SCTE35PID,
	}
}

// Fields are the resolved segmentation values handed to a PayloadCodec.
type Fields struct {
	Kind             model.MarkerKind
	Direction        model.CueDirection
	EventID          uint32
	DurationTicks    uint64
	SegmentationType uint8
	UPIDType         uint8
	UPID             []byte
	AutoReturn       bool
	Descriptor       Descriptor
}

// PayloadCodec serializes Fields into the marker payload.
type PayloadCodec interface {
	Name() string
	Payload(f Fields) ([]byte, error)
}

// Encoder builds cue markers. It holds no mutable state.
type Encoder struct {
	codec    PayloadCodec
	upidType uint8
	outType  uint8
	inType   uint8
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithCodec replaces the payload codec.
func WithCodec(c PayloadCodec) Option {
	return func(e *Encoder) {
		if c != nil {
			e.codec = c
		}
	}
}

// WithUPIDType sets the UPID type used for the ad-content identifier.
func WithUPIDType(t uint8) Option {
	return func(e *Encoder) { e.upidType = t }
}

// WithSegmentationTypes overrides the segmentation type IDs for CUE-OUT and CUE-IN.
func WithSegmentationTypes(out, in uint8) Option {
	return func(e *Encoder) {
		e.outType = out
		e.inType = in
	}
}

// NewEncoder returns an Encoder emitting binary SCTE-35 by default.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		codec:    BinaryCodec{},
		upidType: scte35.UPIDURI,
		outType:  scte35.SegmentationBreakStart,
		inType:   scte35.SegmentationBreakEnd,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Codec returns the configured payload codec name.
func (e *Encoder) Codec() string { return e.codec.Name() }

// Encode builds the marker for one cue. The result depends only on its
// arguments.
func (e *Encoder) Encode(d Descriptor, kind model.MarkerKind, dir model.CueDirection, eventID uint32, at time.Time) (model.CueMarker, error) {
	if kind != model.MarkerSpliceInsert && kind != model.MarkerTimeSignal {
		return model.CueMarker{}, fmt.Errorf("marker: unknown kind %q", kind)
	}
	if dir != model.CueOut && dir != model.CueIn {
		return model.CueMarker{}, fmt.Errorf("marker: unknown direction %q", dir)
	}
	if d.Duration < 0 {
		return model.CueMarker{}, fmt.Errorf("marker: negative duration %s", d.Duration)
	}

	ticks := Ticks(d.Duration)
	if ticks > maxBreakTicks {
		return model.CueMarker{}, fmt.Errorf("marker: duration %s exceeds the 33-bit break duration", d.Duration)
	}

	f := Fields{
		Kind:          kind,
		Direction:     dir,
		EventID:       eventID,
		DurationTicks: ticks,
		AutoReturn:    d.AutoReturn > 0,
		Descriptor:    d,
	}
	f.SegmentationType = e.outType
	if dir == model.CueIn {
		f.SegmentationType = e.inType
	}
	if d.AdID != "" {
		f.UPIDType = e.upidType
		f.UPID = []byte(d.AdID)
	}

	payload, err := e.codec.Payload(f)
	if err != nil {
		return model.CueMarker{}, fmt.Errorf("marker: %s payload: %w", e.codec.Name(), err)
	}

	return model.CueMarker{
		ID:                 MarkerID(d.AdBreakID, dir, eventID),
		StreamID:           d.StreamID,
		AdBreakID:          d.AdBreakID,
		Kind:               kind,
		Direction:          dir,
		EventID:            eventID,
		Duration:           d.Duration,
		ProviderName:       d.ProviderName,
		ProviderID:         d.ProviderID,
		AutoReturn:         d.AutoReturn > 0,
		AutoReturnDuration: d.AutoReturn,
		PreRollDuration:    d.PreRollDuration,
		CrashOut:           d.CrashOut,
		PID:                d.PID,
		Payload:            payload,
		CreatedAt:          at,
	}, nil
}

// Ticks converts d to the 90 kHz signalling clock.
func Ticks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d/time.Millisecond) * (scte35.TicksPerSecond / 1000)
}

// MarkerID derives a stable marker identity so a retried write is idempotent.
func MarkerID(adBreakID string, dir model.CueDirection, eventID uint32) string {
	name := adBreakID + "|" + string(dir) + "|" + strconv.FormatUint(uint64(eventID), 10)
	return uuid.NewSHA1(markerNamespace, []byte(name)).String()
}
