// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const progressOutput = `frame=120
fps=25.00
stream_0_0_q=28.0
bitrate=4980.2kbits/s
total_size=2490112
out_time_us=4000000
out_time_ms=4000000
out_time=00:00:04.000000
dup_frames=0
drop_frames=0
speed=1.00x
progress=continue
frame=240
fps=25.00
bitrate=5001.0kbits/s
total_size=5001216
out_time_us=8000000
out_time_ms=8000000
out_time=00:00:08.000000
speed=1.01x
progress=end
`

func TestProgressParser_Scan(t *testing.T) {
	var (
		p       ProgressParser
		samples []ProgressSample
	)
	require.NoError(t, p.Scan(strings.NewReader(progressOutput), func(s ProgressSample) {
		samples = append(samples, s)
	}))
	require.Len(t, samples, 2)

	assert.Equal(t, int64(120), samples[0].Frame)
	assert.Equal(t, int64(2490112), samples[0].TotalSize)
	assert.Equal(t, 4*time.Second, samples[0].OutTime)
	assert.Equal(t, "1.00x", samples[0].Speed)
	assert.False(t, samples[0].End)

	assert.Equal(t, int64(5001216), samples[1].TotalSize)
	assert.True(t, samples[1].End)
	assert.InDelta(t, 50.0, samples[1].Percent(16*time.Second), 0.001)
}

func TestProgressParser_IgnoresNoiseAndNA(t *testing.T) {
	var p ProgressParser
	_, ok := p.Line("not a key value line")
	assert.False(t, ok)
	_, _ = p.Line("total_size=N/A")
	_, _ = p.Line("out_time_us=N/A")
	s, ok := p.Line("progress=continue")
	require.True(t, ok)
	assert.Zero(t, s.TotalSize)
	assert.Zero(t, s.OutTime)
}

func TestProgressSample_Percent(t *testing.T) {
	s := ProgressSample{OutTime: 30 * time.Second}
	assert.Zero(t, s.Percent(0))
	assert.Equal(t, 100.0, s.Percent(10*time.Second))
}
