// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// ProgressSample is one key/value block from `-progress` output.
type ProgressSample struct {
	Frame     int64
	FPS       float64
	Bitrate   string
	TotalSize int64 // output bytes written so far
	OutTime   time.Duration
	Speed     string
	End       bool
}

// Percent reports OutTime against an expected duration, capped at 100.
// It is zero when the duration is unknown.
func (s ProgressSample) Percent(expected time.Duration) float64 {
	if expected <= 0 {
		return 0
	}
	p := float64(s.OutTime) / float64(expected) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// ProgressParser turns the `-progress pipe:1` stream into samples. A block
// is complete when its "progress=continue|end" line arrives.
type ProgressParser struct {
	cur ProgressSample
}

// Line feeds one line and reports a completed sample, if any.
func (p *ProgressParser) Line(line string) (ProgressSample, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return ProgressSample{}, false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "frame":
		p.cur.Frame, _ = strconv.ParseInt(value, 10, 64)
	case "fps":
		p.cur.FPS, _ = strconv.ParseFloat(value, 64)
	case "bitrate":
		p.cur.Bitrate = value
	case "total_size":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.cur.TotalSize = n
		}
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			p.cur.OutTime = time.Duration(n) * time.Microsecond
		}
	case "speed":
		p.cur.Speed = value
	case "progress":
		s := p.cur
		s.End = value == "end"
		return s, true
	}
	return ProgressSample{}, false
}

// Scan reads r until EOF, calling fn for every completed sample.
func (p *ProgressParser) Scan(r io.Reader, fn func(ProgressSample)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if s, ok := p.Line(sc.Text()); ok {
			fn(s)
		}
	}
	return sc.Err()
}
