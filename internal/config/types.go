// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

// AppConfig is the merged daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Streams   []StreamEntry   `yaml:"streams"`
}

// ServerConfig is the admin HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the per-client budget for mutating requests per minute.
	RateLimit int `yaml:"rateLimit"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busyTimeout"`
	Retry       RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxTries        int           `yaml:"maxTries"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// RedisConfig enables the Redis event publisher.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	// BreakerThreshold consecutive publish failures pause publishing for
	// BreakerReset.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	Environment  string  `yaml:"environment"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// FFmpegConfig tunes the encoding supervisor.
type FFmpegConfig struct {
	Bin              string        `yaml:"bin"`
	OutputDir        string        `yaml:"outputDir"`
	StopGrace        time.Duration `yaml:"stopGrace"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
	ShutdownPolicy   string        `yaml:"shutdownPolicy"`
}

// SchedulerConfig tunes the ad-break scheduler and its marker encoder.
type SchedulerConfig struct {
	MarkerKind      string        `yaml:"markerKind"`
	Codec           string        `yaml:"codec"`
	UPIDType        int           `yaml:"upidType"`
	CallbackTimeout time.Duration `yaml:"callbackTimeout"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	FireAttempts    int           `yaml:"fireAttempts"`
}

// StreamEntry declares a stream upserted at startup. Zero fields take the
// stock broadcast profile.
type StreamEntry struct {
	ID               string  `yaml:"id"`
	Name             string  `yaml:"name"`
	InputURL         string  `yaml:"inputUrl"`
	OutputURL        string  `yaml:"outputUrl"`
	OutputDir        string  `yaml:"outputDir"`
	Format           string  `yaml:"format"`
	Bitrate          int     `yaml:"bitrate"`
	Resolution       string  `yaml:"resolution"`
	AspectRatio      string  `yaml:"aspectRatio"`
	GOPSize          int     `yaml:"gopSize"`
	KeyframeInterval int     `yaml:"keyframeInterval"`
	BFrames          *int    `yaml:"bFrames"`
	Profile          string  `yaml:"profile"`
	Preset           string  `yaml:"preset"`
	ChromaFormat     string  `yaml:"chromaFormat"`
	AudioBitrate     int     `yaml:"audioBitrate"`
	AudioSampleRate  int     `yaml:"audioSampleRate"`
	AudioLKFS        float64 `yaml:"audioLkfs"`
	SCTE35PID        int     `yaml:"scte35Pid"`
	SCTE35Passthru   *bool   `yaml:"scte35Passthrough"`
	LatencyMs        int     `yaml:"latencyMs"`
}

// Stream converts the entry into a stream record.
func (e StreamEntry) Stream() *model.Stream {
	cfg := model.DefaultStreamConfig()
	cfg.InputURL = e.InputURL
	cfg.OutputURL = e.OutputURL
	cfg.OutputDir = e.OutputDir
	setString(&cfg.Format, e.Format)
	setInt(&cfg.Bitrate, e.Bitrate)
	setString(&cfg.Resolution, e.Resolution)
	setString(&cfg.AspectRatio, e.AspectRatio)
	setInt(&cfg.GOPSize, e.GOPSize)
	setInt(&cfg.KeyframeInterval, e.KeyframeInterval)
	if e.BFrames != nil {
		cfg.BFrames = *e.BFrames
	}
	setString(&cfg.Profile, e.Profile)
	setString(&cfg.Preset, e.Preset)
	setString(&cfg.ChromaFormat, e.ChromaFormat)
	setInt(&cfg.AudioBitrate, e.AudioBitrate)
	setInt(&cfg.AudioSampleRate, e.AudioSampleRate)
	if e.AudioLKFS != 0 {
		cfg.AudioLKFS = e.AudioLKFS
	}
	setInt(&cfg.SCTE35PID, e.SCTE35PID)
	if e.SCTE35Passthru != nil {
		cfg.SCTE35Passthrough = *e.SCTE35Passthru
	}
	setInt(&cfg.LatencyMs, e.LatencyMs)

	name := e.Name
	if name == "" {
		name = e.ID
	}
	return &model.Stream{ID: e.ID, Name: name, Status: model.StreamIdle, Config: cfg}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
