// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

// Durations cross the wire as seconds.

func seconds(d time.Duration) float64 { return d.Seconds() }

func fromSeconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

type adBreakRequest struct {
	ID              string    `json:"id,omitempty"`
	StreamID        string    `json:"streamId"`
	Name            string    `json:"name,omitempty"`
	ScheduledTime   time.Time `json:"scheduledTime"`
	Duration        *float64  `json:"duration,omitempty"`
	AdID            string    `json:"adId,omitempty"`
	Description     string    `json:"description,omitempty"`
	ProviderName    string    `json:"providerName,omitempty"`
	ProviderID      string    `json:"providerId,omitempty"`
	AutoReturn      *float64  `json:"autoReturn,omitempty"`
	PreRollDuration float64   `json:"preRollDuration,omitempty"`
	SCTE35PID       int       `json:"scte35Pid,omitempty"`
}

func (r adBreakRequest) toModel() *model.AdBreak {
	b := &model.AdBreak{
		ID:              r.ID,
		StreamID:        r.StreamID,
		Name:            r.Name,
		ScheduledTime:   r.ScheduledTime,
		Duration:        model.DefaultBreakDuration,
		AdID:            r.AdID,
		Description:     r.Description,
		ProviderName:    r.ProviderName,
		ProviderID:      r.ProviderID,
		AutoReturn:      model.DefaultAutoReturn,
		PreRollDuration: fromSeconds(r.PreRollDuration),
		SCTE35PID:       r.SCTE35PID,
	}
	if r.Duration != nil {
		b.Duration = fromSeconds(*r.Duration)
	}
	if r.AutoReturn != nil {
		b.AutoReturn = fromSeconds(*r.AutoReturn)
	}
	return b
}

type adBreakResponse struct {
	ID              string     `json:"id"`
	StreamID        string     `json:"streamId"`
	Name            string     `json:"name,omitempty"`
	ScheduledTime   time.Time  `json:"scheduledTime"`
	Duration        float64    `json:"duration"`
	AdID            string     `json:"adId,omitempty"`
	Description     string     `json:"description,omitempty"`
	ProviderName    string     `json:"providerName"`
	ProviderID      string     `json:"providerId"`
	AutoReturn      float64    `json:"autoReturn"`
	PreRollDuration float64    `json:"preRollDuration"`
	CrashOut        bool       `json:"crashOut"`
	SCTE35PID       int        `json:"scte35Pid"`
	Status          string     `json:"status"`
	EventID         *uint32    `json:"eventId,omitempty"`
	TriggeredAt     *time.Time `json:"triggeredAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	ReturnDueAt     *time.Time `json:"returnDueAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func newAdBreakResponse(b *model.AdBreak) adBreakResponse {
	return adBreakResponse{
		ID:              b.ID,
		StreamID:        b.StreamID,
		Name:            b.Name,
		ScheduledTime:   b.ScheduledTime,
		Duration:        seconds(b.Duration),
		AdID:            b.AdID,
		Description:     b.Description,
		ProviderName:    b.ProviderName,
		ProviderID:      b.ProviderID,
		AutoReturn:      seconds(b.AutoReturn),
		PreRollDuration: seconds(b.PreRollDuration),
		CrashOut:        b.CrashOut,
		SCTE35PID:       b.SCTE35PID,
		Status:          string(b.Status),
		EventID:         b.EventID,
		TriggeredAt:     b.TriggeredAt,
		CompletedAt:     b.CompletedAt,
		ReturnDueAt:     b.ReturnDueAt,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func newAdBreakList(bs []*model.AdBreak) []adBreakResponse {
	out := make([]adBreakResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, newAdBreakResponse(b))
	}
	return out
}

type markerResponse struct {
	ID                 string    `json:"id"`
	StreamID           string    `json:"streamId"`
	AdBreakID          string    `json:"adBreakId"`
	Kind               string    `json:"kind"`
	Direction          string    `json:"direction"`
	EventID            uint32    `json:"eventId"`
	Duration           float64   `json:"duration"`
	ProviderName       string    `json:"providerName"`
	ProviderID         string    `json:"providerId"`
	AutoReturn         bool      `json:"autoReturn"`
	AutoReturnDuration float64   `json:"autoReturnDuration"`
	PreRollDuration    float64   `json:"preRollDuration"`
	CrashOut           bool      `json:"crashOut"`
	PID                int       `json:"pid"`
	Payload            []byte    `json:"payload"`
	CreatedAt          time.Time `json:"createdAt"`
}

func newMarkerList(ms []model.CueMarker) []markerResponse {
	out := make([]markerResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, markerResponse{
			ID:                 m.ID,
			StreamID:           m.StreamID,
			AdBreakID:          m.AdBreakID,
			Kind:               string(m.Kind),
			Direction:          string(m.Direction),
			EventID:            m.EventID,
			Duration:           seconds(m.Duration),
			ProviderName:       m.ProviderName,
			ProviderID:         m.ProviderID,
			AutoReturn:         m.AutoReturn,
			AutoReturnDuration: seconds(m.AutoReturnDuration),
			PreRollDuration:    seconds(m.PreRollDuration),
			CrashOut:           m.CrashOut,
			PID:                m.PID,
			Payload:            m.PayloadCopy(),
			CreatedAt:          m.CreatedAt,
		})
	}
	return out
}

type startRequest struct {
	StreamID string `json:"streamId"`
}

type sessionResponse struct {
	ID          string     `json:"id"`
	StreamID    string     `json:"streamId"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Progress    float64    `json:"progress"`
	InputBytes  int64      `json:"inputBytes"`
	OutputBytes int64      `json:"outputBytes"`
	PID         int        `json:"pid,omitempty"`
	LogPath     string     `json:"logPath,omitempty"`
	ExitCode    *int       `json:"exitCode,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func newSessionResponse(s *model.EncodingSession) sessionResponse {
	return sessionResponse{
		ID:          s.ID,
		StreamID:    s.StreamID,
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		Progress:    s.Progress,
		InputBytes:  s.InputBytes,
		OutputBytes: s.OutputBytes,
		PID:         s.PID,
		LogPath:     s.LogPath,
		ExitCode:    s.ExitCode,
		Reason:      s.Reason,
		UpdatedAt:   s.UpdatedAt,
	}
}

// streamConfigDTO mirrors model.StreamConfig. Zero values in a request keep
// the defaults, except for the pointer fields.
type streamConfigDTO struct {
	InputURL          string  `json:"inputUrl"`
	OutputURL         string  `json:"outputUrl,omitempty"`
	OutputDir         string  `json:"outputDir,omitempty"`
	Format            string  `json:"format,omitempty"`
	Bitrate           int     `json:"bitrate,omitempty"`
	Resolution        string  `json:"resolution,omitempty"`
	AspectRatio       string  `json:"aspectRatio,omitempty"`
	GOPSize           int     `json:"gopSize,omitempty"`
	KeyframeInterval  int     `json:"keyframeInterval,omitempty"`
	BFrames           *int    `json:"bFrames,omitempty"`
	Profile           string  `json:"profile,omitempty"`
	Preset            string  `json:"preset,omitempty"`
	ChromaFormat      string  `json:"chromaFormat,omitempty"`
	AudioBitrate      int     `json:"audioBitrate,omitempty"`
	AudioSampleRate   int     `json:"audioSampleRate,omitempty"`
	AudioLKFS         float64 `json:"audioLkfs,omitempty"`
	SCTE35PID         int     `json:"scte35Pid,omitempty"`
	NullPID           int     `json:"nullPid,omitempty"`
	SCTE35Passthrough *bool   `json:"scte35Passthrough,omitempty"`
	LatencyMs         int     `json:"latencyMs,omitempty"`
	HLSSegmentSeconds int     `json:"hlsSegmentSeconds,omitempty"`
	HLSListSize       int     `json:"hlsListSize,omitempty"`
}

func (d streamConfigDTO) toModel() model.StreamConfig {
	cfg := model.DefaultStreamConfig()
	cfg.InputURL = d.InputURL
	cfg.OutputURL = d.OutputURL
	cfg.OutputDir = d.OutputDir
	overlay(&cfg.Format, d.Format)
	overlay(&cfg.Bitrate, d.Bitrate)
	overlay(&cfg.Resolution, d.Resolution)
	overlay(&cfg.AspectRatio, d.AspectRatio)
	overlay(&cfg.GOPSize, d.GOPSize)
	overlay(&cfg.KeyframeInterval, d.KeyframeInterval)
	if d.BFrames != nil {
		cfg.BFrames = *d.BFrames
	}
	overlay(&cfg.Profile, d.Profile)
	overlay(&cfg.Preset, d.Preset)
	overlay(&cfg.ChromaFormat, d.ChromaFormat)
	overlay(&cfg.AudioBitrate, d.AudioBitrate)
	overlay(&cfg.AudioSampleRate, d.AudioSampleRate)
	overlay(&cfg.AudioLKFS, d.AudioLKFS)
	overlay(&cfg.SCTE35PID, d.SCTE35PID)
	overlay(&cfg.NullPID, d.NullPID)
	if d.SCTE35Passthrough != nil {
		cfg.SCTE35Passthrough = *d.SCTE35Passthrough
	}
	overlay(&cfg.LatencyMs, d.LatencyMs)
	overlay(&cfg.HLSSegmentSeconds, d.HLSSegmentSeconds)
	overlay(&cfg.HLSListSize, d.HLSListSize)
	return cfg
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

func newStreamConfigDTO(c model.StreamConfig) streamConfigDTO {
	return streamConfigDTO{
		InputURL:          c.InputURL,
		OutputURL:         c.OutputURL,
		OutputDir:         c.OutputDir,
		Format:            c.Format,
		Bitrate:           c.Bitrate,
		Resolution:        c.Resolution,
		AspectRatio:       c.AspectRatio,
		GOPSize:           c.GOPSize,
		KeyframeInterval:  c.KeyframeInterval,
		BFrames:           model.Ptr(c.BFrames),
		Profile:           c.Profile,
		Preset:            c.Preset,
		ChromaFormat:      c.ChromaFormat,
		AudioBitrate:      c.AudioBitrate,
		AudioSampleRate:   c.AudioSampleRate,
		AudioLKFS:         c.AudioLKFS,
		SCTE35PID:         c.SCTE35PID,
		NullPID:           c.NullPID,
		SCTE35Passthrough: model.Ptr(c.SCTE35Passthrough),
		LatencyMs:         c.LatencyMs,
		HLSSegmentSeconds: c.HLSSegmentSeconds,
		HLSListSize:       c.HLSListSize,
	}
}

type streamRequest struct {
	Name   string          `json:"name,omitempty"`
	Config streamConfigDTO `json:"config"`
}

type streamResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Config    streamConfigDTO `json:"config"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newStreamResponse(s *model.Stream) streamResponse {
	return streamResponse{
		ID:        s.ID,
		Name:      s.Name,
		Status:    string(s.Status),
		Config:    newStreamConfigDTO(s.Config),
		UpdatedAt: s.UpdatedAt,
	}
}

type auditResponse struct {
	ID        int64          `json:"id"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	At        time.Time      `json:"at"`
}
