// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scte35

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference encodings produced by an independent SCTE-35 implementation.
const (
	goldenInsertOut = "fc303200000000000000fff01005000000057fbf00fe007b98a0000101010011020f43554549000000057fbf00002201017f1add87"
	goldenInsertIn  = "fc302d00000000000000fff00b05000000067f1f00000101010011020f43554549000000067fbf0000230101c2262974"
)

func TestEncodeMatchesReferenceVectors(t *testing.T) {
	out := &Section{
		SAPType: 3,
		Tier:    0xFFF,
		Command: &SpliceInsert{
			EventID: 5, OutOfNetwork: true, Immediate: true,
			Duration:        &BreakDuration{AutoReturn: true, Ticks: 90 * TicksPerSecond},
			UniqueProgramID: 1, AvailNum: 1, AvailsExpected: 1,
		},
		Descriptors: []*SegmentationDescriptor{
			{EventID: 5, TypeID: SegmentationBreakStart, SegmentNum: 1, SegmentsExpected: 1},
		},
	}
	in := &Section{
		SAPType: 3,
		Tier:    0xFFF,
		Command: &SpliceInsert{
			EventID: 6, Immediate: true,
			UniqueProgramID: 1, AvailNum: 1, AvailsExpected: 1,
		},
		Descriptors: []*SegmentationDescriptor{
			{EventID: 6, TypeID: SegmentationBreakEnd, SegmentNum: 1, SegmentsExpected: 1},
		},
	}

	for name, tc := range map[string]struct {
		section *Section
		want    string
	}{
		"splice_insert out": {out, goldenInsertOut},
		"splice_insert in":  {in, goldenInsertIn},
	} {
		t.Run(name, func(t *testing.T) {
			b, err := tc.section.Encode()
			require.NoError(t, err)
			assert.Equal(t, tc.want, hex.EncodeToString(b))
		})
	}
}

func TestDecodeRecoversBreakFields(t *testing.T) {
	dur := uint64(30 * TicksPerSecond)
	s := &Section{
		SAPType: 3,
		Tier:    0xFFF,
		Command: &SpliceInsert{
			EventID: 100000, OutOfNetwork: true, Immediate: true,
			Duration: &BreakDuration{AutoReturn: true, Ticks: dur},
		},
		Descriptors: []*SegmentationDescriptor{{
			EventID:  100000,
			TypeID:   SegmentationBreakStart,
			Duration: &dur,
			UPIDType: UPIDURI,
			UPID:     []byte("urn:ad:summer-sale-30"),
		}},
	}
	b, err := s.Encode()
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	ins, ok := got.Command.(*SpliceInsert)
	require.True(t, ok)
	assert.Equal(t, uint32(100000), ins.EventID)
	assert.True(t, ins.OutOfNetwork)
	require.NotNil(t, ins.Duration)
	assert.Equal(t, dur, ins.Duration.Ticks)

	require.Len(t, got.Descriptors, 1)
	d := got.Descriptors[0]
	assert.Equal(t, SegmentationBreakStart, d.TypeID)
	assert.Equal(t, UPIDURI, d.UPIDType)
	assert.Equal(t, "urn:ad:summer-sale-30", string(d.UPID))
	require.NotNil(t, d.Duration)
	assert.Equal(t, dur, *d.Duration)
}

func TestDecodeTimeSignalImmediate(t *testing.T) {
	s := &Section{
		Tier:    0xFFF,
		Command: &TimeSignal{},
		Descriptors: []*SegmentationDescriptor{
			{EventID: 7, TypeID: SegmentationBreakEnd, UPIDType: UPIDURI, UPID: []byte("ad-1")},
		},
	}
	b, err := s.Encode()
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	ts, ok := got.Command.(*TimeSignal)
	require.True(t, ok)
	assert.Nil(t, ts.PTS)
	assert.Nil(t, got.Descriptors[0].Duration)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	b, err := hex.DecodeString(goldenInsertOut)
	require.NoError(t, err)
	b[10] ^= 0xFF

	_, err = Decode(b)
	assert.ErrorContains(t, err, "CRC mismatch")
}

func TestEncodeRejectsOversizedUPID(t *testing.T) {
	s := &Section{
		Command: &TimeSignal{},
		Descriptors: []*SegmentationDescriptor{
			{TypeID: SegmentationBreakStart, UPIDType: UPIDURI, UPID: make([]byte, 250)},
		},
	}
	_, err := s.Encode()
	assert.ErrorContains(t, err, "too long")
}
