// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans.
const (
	AdBreakIDKey = "adbreak.id"
	StreamIDKey  = "stream.id"
	EventIDKey   = "cue.event_id"
	DirectionKey = "cue.direction"
	CrashOutKey  = "cue.crash_out"

	SessionIDKey  = "encoding.session_id"
	PIDKey        = "encoding.pid"
	BitrateKey    = "encoding.bitrate_kbps"
	ResolutionKey = "encoding.resolution"
	FormatKey     = "encoding.format"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// AdBreakAttributes identifies an ad break on a span.
func AdBreakAttributes(adBreakID, streamID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if adBreakID != "" {
		attrs = append(attrs, attribute.String(AdBreakIDKey, adBreakID))
	}
	if streamID != "" {
		attrs = append(attrs, attribute.String(StreamIDKey, streamID))
	}
	return attrs
}

// CueAttributes describes an emitted marker.
func CueAttributes(direction string, eventID uint32, crashOut bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DirectionKey, direction),
		attribute.Int64(EventIDKey, int64(eventID)),
		attribute.Bool(CrashOutKey, crashOut),
	}
}

// EncodingAttributes describes an encoder session.
func EncodingAttributes(sessionID, streamID, format, resolution string, bitrate int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.String(StreamIDKey, streamID),
		attribute.String(FormatKey, format),
		attribute.String(ResolutionKey, resolution),
		attribute.Int(BitrateKey, bitrate),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
