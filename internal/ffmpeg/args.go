// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ffmpeg builds transcoder command lines and parses transcoder
// output.
package ffmpeg

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

// DefaultBinary is used when no ffmpeg path is configured.
const DefaultBinary = "/usr/local/bin/ffmpeg"

// HLSPlaylistName is the playlist written into the output directory.
const HLSPlaylistName = "index.m3u8"

var resolutionRe = regexp.MustCompile(`^[1-9][0-9]*x[1-9][0-9]*$`)

// BuildArgs returns the argument vector (without the binary) for encoding
// one stream. The same config always yields the same vector.
func BuildArgs(cfg model.StreamConfig) ([]string, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	gop := cfg.GOPSize
	if gop <= 0 {
		gop = cfg.KeyframeInterval
	}

	args := []string{
		"-i", cfg.InputURL,

		"-c:v", "libx264",
		"-preset", cfg.Preset,
		"-profile:v", cfg.Profile,
		"-b:v", kbps(float64(cfg.Bitrate)),
		"-maxrate", kbps(float64(cfg.Bitrate) * 1.5),
		"-bufsize", kbps(float64(cfg.Bitrate) * 2),
		"-s", cfg.Resolution,
		"-aspect", cfg.AspectRatio,
		"-g", strconv.Itoa(gop),
		"-keyint_min", strconv.Itoa(cfg.KeyframeInterval),
		"-bf", strconv.Itoa(cfg.BFrames),
		"-pix_fmt", "yuv" + strings.ReplaceAll(cfg.ChromaFormat, ":", "") + "p",
		"-sc_threshold", "0",

		"-pcr_period", "20",
		"-mpegts_pcr_start", "0",

		"-c:a", "aac",
		"-profile:a", "aac_low",
		"-b:a", kbps(float64(cfg.AudioBitrate)),
		"-ar", strconv.Itoa(cfg.AudioSampleRate),
		"-af", "volume=" + strconv.FormatFloat(LinearGain(cfg.AudioLKFS), 'f', -1, 64),

		"-scte35_pid", strconv.Itoa(cfg.SCTE35PID),
		"-mpegts_null_pid", strconv.Itoa(cfg.NullPID),
	}

	if cfg.SCTE35Passthrough {
		args = append(args, "-scte35_from_stream", "true")
	}
	args = append(args, "-progress", "pipe:1", "-nostats")

	if cfg.Format == model.OutputHLS {
		segment := cfg.HLSSegmentSeconds
		if segment <= 0 {
			segment = 6
		}
		listSize := cfg.HLSListSize
		if listSize <= 0 {
			listSize = 5
		}
		return append(args,
			"-f", "hls",
			"-hls_time", strconv.Itoa(segment),
			"-hls_list_size", strconv.Itoa(listSize),
			"-hls_flags", "delete_segments",
			"-hls_segment_type", "mpegts",
			filepath.Join(cfg.OutputDir, HLSPlaylistName),
		), nil
	}

	return append(args,
		"-f", "mpegts",
		"-mpegts_transport_stream_id", "1",
		"-mpegts_original_network_id", "1",
		"-mpegts_service_id", "1",
		"-mpegts_service_type", "digital_tv",
		"-mpegts_pmt_start_pid", "16",
		"-mpegts_start_pid", "256",
		"-flush_packets", "1",
		"-fflags", "+genpts+ignidx",
		cfg.OutputURL,
	), nil
}

// LinearGain converts a loudness target in LKFS to an amplitude factor.
func LinearGain(lkfs float64) float64 {
	return math.Pow(10, lkfs/20)
}

func kbps(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "k"
}

func validate(cfg model.StreamConfig) error {
	invalid := func(format string, a ...any) error {
		return fmt.Errorf("%w: %s", model.ErrValidation, fmt.Sprintf(format, a...))
	}
	switch {
	case cfg.InputURL == "":
		return invalid("input url is required")
	case cfg.Format == model.OutputHLS && cfg.OutputDir == "":
		return invalid("hls output requires an output directory")
	case cfg.Format != model.OutputHLS && cfg.OutputURL == "":
		return invalid("output url is required")
	case cfg.Format != "" && cfg.Format != model.OutputHLS && cfg.Format != model.OutputMPEGTS:
		return invalid("unknown output format %q", cfg.Format)
	case cfg.Bitrate <= 0:
		return invalid("video bitrate must be positive")
	case cfg.AudioBitrate <= 0 || cfg.AudioSampleRate <= 0:
		return invalid("audio bitrate and sample rate must be positive")
	case !resolutionRe.MatchString(cfg.Resolution):
		return invalid("resolution %q is not WIDTHxHEIGHT", cfg.Resolution)
	case cfg.KeyframeInterval <= 0:
		return invalid("keyframe interval must be positive")
	case cfg.BFrames < 0:
		return invalid("b-frames must not be negative")
	case cfg.Preset == "" || cfg.Profile == "" || cfg.AspectRatio == "":
		return invalid("preset, profile and aspect ratio are required")
	case cfg.SCTE35PID <= 0 || cfg.SCTE35PID > 0x1FFF || cfg.NullPID <= 0 || cfg.NullPID > 0x1FFF:
		return invalid("pids must be within 1..8191")
	}
	switch cfg.ChromaFormat {
	case "4:2:0", "4:2:2", "4:4:4":
	default:
		return invalid("chroma format %q unsupported", cfg.ChromaFormat)
	}
	return nil
}
