// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// StreamStatus mirrors the lifecycle of the stream's current session.
type StreamStatus string

const (
	StreamIdle     StreamStatus = "IDLE"
	StreamEncoding StreamStatus = "ENCODING"
	StreamError    StreamStatus = "ERROR"
	StreamStopping StreamStatus = "STOPPING"
)

// StreamStatusFor maps a session status onto the stream status it implies.
func StreamStatusFor(s SessionStatus) StreamStatus {
	switch s {
	case SessionStarting, SessionRunning:
		return StreamEncoding
	case SessionStopping:
		return StreamStopping
	case SessionError:
		return StreamError
	default:
		return StreamIdle
	}
}

// Output container formats.
const (
	OutputMPEGTS = "mpegts"
	OutputHLS    = "hls"
)

// StreamConfig holds the encoding parameters of one stream.
type StreamConfig struct {
	InputURL  string
	OutputURL string
	OutputDir string
	Format    string // mpegts or hls

	Bitrate          int // kbps
	Resolution       string
	AspectRatio      string
	GOPSize          int
	KeyframeInterval int
	BFrames          int
	Profile          string
	Preset           string
	ChromaFormat     string

	AudioBitrate    int // kbps
	AudioSampleRate int
	AudioLKFS       float64

	SCTE35PID         int
	NullPID           int
	SCTE35Passthrough bool
	LatencyMs         int

	HLSSegmentSeconds int
	HLSListSize       int
}

// DefaultStreamConfig returns the stock broadcast profile.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Format:            OutputMPEGTS,
		Bitrate:           5000,
		Resolution:        "1920x1080",
		AspectRatio:       "16:9",
		GOPSize:           12,
		KeyframeInterval:  12,
		BFrames:           5,
		Profile:           "high",
		Preset:            "veryfast",
		ChromaFormat:      "4:2:0",
		AudioBitrate:      128,
		AudioSampleRate:   48000,
		AudioLKFS:         -20,
		SCTE35PID:         500,
		NullPID:           8191,
		SCTE35Passthrough: true,
		LatencyMs:         2000,
		HLSSegmentSeconds: 6,
		HLSListSize:       5,
	}
}

// Stream is the configuration source and status holder for one channel.
type Stream struct {
	ID        string
	Name      string
	Status    StreamStatus
	Config    StreamConfig
	UpdatedAt time.Time
}

// StreamPatch is a partial update of a stream.
type StreamPatch struct {
	Status *StreamStatus
}

// Apply writes the patch onto s and stamps UpdatedAt.
func (p StreamPatch) Apply(s *Stream, now time.Time) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	s.UpdatedAt = now
}
