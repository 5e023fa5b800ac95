// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package marker

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/scte35"
)

var at = time.Date(2026, 5, 4, 18, 30, 0, 0, time.UTC)

func testDescriptor() Descriptor {
	return Descriptor{
		AdBreakID:    "brk-1",
		StreamID:     "news-1",
		AdID:         "urn:ad:summer-sale",
		Duration:     30 * time.Second,
		ProviderName: "YourProvider",
		ProviderID:   "0x1",
		AutoReturn:   30 * time.Second,
		PID:          500,
	}
}

func TestEncodeCueOutSpliceInsert(t *testing.T) {
	enc := NewEncoder()
	m, err := enc.Encode(testDescriptor(), model.MarkerSpliceInsert, model.CueOut, 100000, at)
	require.NoError(t, err)

	assert.Equal(t, model.CueOut, m.Direction)
	assert.Equal(t, uint32(100000), m.EventID)
	assert.Equal(t, 500, m.PID)
	assert.True(t, m.AutoReturn)
	assert.Equal(t, at, m.CreatedAt)

	sec, err := scte35.Decode(m.Payload)
	require.NoError(t, err)
	ins, ok := sec.Command.(*scte35.SpliceInsert)
	require.True(t, ok)
	assert.True(t, ins.OutOfNetwork)
	require.NotNil(t, ins.Duration)
	assert.Equal(t, uint64(30*90000), ins.Duration.Ticks)
	assert.True(t, ins.Duration.AutoReturn)

	require.Len(t, sec.Descriptors, 1)
	seg := sec.Descriptors[0]
	assert.Equal(t, scte35.SegmentationBreakStart, seg.TypeID)
	assert.Equal(t, scte35.UPIDURI, seg.UPIDType)
	assert.Equal(t, "urn:ad:summer-sale", string(seg.UPID))
	require.NotNil(t, seg.Duration)
	assert.Equal(t, uint64(2700000), *seg.Duration)
}

func TestEncodeCueInHasNoDuration(t *testing.T) {
	d := testDescriptor()
	d.Duration = 0
	d.CrashOut = true

	m, err := NewEncoder().Encode(d, model.MarkerSpliceInsert, model.CueIn, 100001, at)
	require.NoError(t, err)
	assert.True(t, m.CrashOut)
	assert.Zero(t, m.Duration)

	sec, err := scte35.Decode(m.Payload)
	require.NoError(t, err)
	ins := sec.Command.(*scte35.SpliceInsert)
	assert.False(t, ins.OutOfNetwork)
	assert.Nil(t, ins.Duration)
	assert.Equal(t, scte35.SegmentationBreakEnd, sec.Descriptors[0].TypeID)
}

func TestEncodeTimeSignal(t *testing.T) {
	m, err := NewEncoder().Encode(testDescriptor(), model.MarkerTimeSignal, model.CueOut, 7, at)
	require.NoError(t, err)
	sec, err := scte35.Decode(m.Payload)
	require.NoError(t, err)
	_, ok := sec.Command.(*scte35.TimeSignal)
	assert.True(t, ok)
	assert.Equal(t, uint32(7), sec.Descriptors[0].EventID)
}

func TestEncodeIsDeterministic(t *testing.T) {
	enc := NewEncoder()
	a, err := enc.Encode(testDescriptor(), model.MarkerSpliceInsert, model.CueOut, 42, at)
	require.NoError(t, err)
	b, err := enc.Encode(testDescriptor(), model.MarkerSpliceInsert, model.CueOut, 42, at)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := enc.Encode(testDescriptor(), model.MarkerSpliceInsert, model.CueOut, 43, at)
	require.NoError(t, err)
	assert.NotEqual(t, a.Payload, c.Payload)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestEncodeRejectsBadInput(t *testing.T) {
	enc := NewEncoder()

	d := testDescriptor()
	d.Duration = -time.Second
	_, err := enc.Encode(d, model.MarkerSpliceInsert, model.CueOut, 1, at)
	assert.Error(t, err)

	d = testDescriptor()
	d.Duration = 30 * time.Hour
	_, err = enc.Encode(d, model.MarkerSpliceInsert, model.CueOut, 1, at)
	assert.ErrorContains(t, err, "33-bit")

	_, err = enc.Encode(testDescriptor(), "splice_schedule", model.CueOut, 1, at)
	assert.Error(t, err)
}

func TestJSONCodecIsPluggable(t *testing.T) {
	enc := NewEncoder(WithCodec(JSONCodec{}), WithUPIDType(scte35.UPIDTI))
	m, err := enc.Encode(testDescriptor(), model.MarkerSpliceInsert, model.CueOut, 100000, at)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(string(m.Payload))
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, "splice_insert", p["splice_command_type"])
	seg := p["segmentation_descriptor"].(map[string]any)
	assert.EqualValues(t, 0x22, seg["segmentation_type_id"])
	assert.EqualValues(t, 0x08, seg["segmentation_upid_type"])
	assert.EqualValues(t, 2700000, seg["segmentation_duration"])
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecBinary, c.Name())

	c, err = ParseCodec("json")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	_, err = ParseCodec("xml")
	assert.Error(t, err)
}

func TestTicks(t *testing.T) {
	assert.Equal(t, uint64(0), Ticks(0))
	assert.Equal(t, uint64(90000), Ticks(time.Second))
	assert.Equal(t, uint64(45000), Ticks(500*time.Millisecond))
}
