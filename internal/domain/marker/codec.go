// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package marker

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/scte35"
)

// Codec names accepted by ParseCodec.
const (
	CodecBinary = "scte35"
	CodecJSON   = "json"
)

// ParseCodec resolves a configured codec name.
func ParseCodec(name string) (PayloadCodec, error) {
	switch name {
	case "", CodecBinary:
		return BinaryCodec{}, nil
	case CodecJSON:
		return JSONCodec{}, nil
	}
	return nil, fmt.Errorf("marker: unknown payload codec %q", name)
}

// BinaryCodec emits a splice_info_section.
type BinaryCodec struct{}

func (BinaryCodec) Name() string { return CodecBinary }

func (BinaryCodec) Payload(f Fields) ([]byte, error) {
	seg := &scte35.SegmentationDescriptor{
		EventID:          f.EventID,
		TypeID:           f.SegmentationType,
		UPIDType:         f.UPIDType,
		UPID:             f.UPID,
		SegmentNum:       1,
		SegmentsExpected: 1,
	}
	if f.DurationTicks > 0 {
		ticks := f.DurationTicks
		seg.Duration = &ticks
	}

	var cmd scte35.Command
	switch f.Kind {
	case model.MarkerTimeSignal:
		cmd = &scte35.TimeSignal{}
	default:
		ins := &scte35.SpliceInsert{
			EventID:         f.EventID,
			OutOfNetwork:    f.Direction == model.CueOut,
			Immediate:       true,
			UniqueProgramID: 1,
			AvailNum:        1,
			AvailsExpected:  1,
		}
		if f.Direction == model.CueOut && f.DurationTicks > 0 {
			ins.Duration = &scte35.BreakDuration{AutoReturn: f.AutoReturn, Ticks: f.DurationTicks}
		}
		cmd = ins
	}

	section := &scte35.Section{
		SAPType:     3,
		Tier:        0xFFF,
		Command:     cmd,
		Descriptors: []*scte35.SegmentationDescriptor{seg},
	}
	return section.Encode()
}

// JSONCodec emits base64-encoded JSON for consumers of the legacy format.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

type legacySegmentation struct {
	TypeID     uint8  `json:"segmentation_type_id"`
	Duration   uint64 `json:"segmentation_duration"`
	UPIDType   uint8  `json:"segmentation_upid_type"`
	UPIDLength int    `json:"segmentation_upid_length"`
	UPID       string `json:"segmentation_upid"`
}

type legacyPayload struct {
	CommandType   string             `json:"splice_command_type"`
	EventID       uint32             `json:"splice_event_id"`
	OutOfNetwork  bool               `json:"out_of_network_indicator"`
	Immediate     bool               `json:"splice_immediate_flag"`
	BreakDuration uint64             `json:"break_duration,omitempty"`
	AutoReturn    bool               `json:"auto_return"`
	ProviderName  string             `json:"provider_name"`
	ProviderID    string             `json:"provider_id"`
	PreRoll       float64            `json:"pre_roll_duration"`
	CrashOut      bool               `json:"crash_out"`
	PID           int                `json:"scte35_pid"`
	Segmentation  legacySegmentation `json:"segmentation_descriptor"`
}

func (JSONCodec) Payload(f Fields) ([]byte, error) {
	p := legacyPayload{
		CommandType:  string(f.Kind),
		EventID:      f.EventID,
		OutOfNetwork: f.Direction == model.CueOut,
		Immediate:    true,
		AutoReturn:   f.AutoReturn,
		ProviderName: f.Descriptor.ProviderName,
		ProviderID:   f.Descriptor.ProviderID,
		PreRoll:      f.Descriptor.PreRollDuration.Seconds(),
		CrashOut:     f.Descriptor.CrashOut,
		PID:          f.Descriptor.PID,
		Segmentation: legacySegmentation{
			TypeID:     f.SegmentationType,
			Duration:   f.DurationTicks,
			UPIDType:   f.UPIDType,
			UPIDLength: len(f.UPID),
			UPID:       string(f.UPID),
		},
	}
	if f.Direction == model.CueOut {
		p.BreakDuration = f.DurationTicks
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}
