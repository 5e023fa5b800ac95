// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/cuepoint/internal/bus"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/metrics"
)

// handleEvents streams bus messages as server-sent events. ?topic= narrows
// the feed to one topic.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "EVENTS_DISABLED", "event stream is not configured")
		return
	}
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = bus.AllTopics
	}

	ctx := r.Context()
	sub, err := s.events.Subscribe(ctx, topic)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server write timeout does not apply to a long-lived stream.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	metrics.EventStreamClients.Inc()
	defer metrics.EventStreamClients.Dec()
	logger := log.WithContext(ctx, s.logger)
	logger.Debug().Str("topic", topic).Msg("event stream opened")

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(msg.Payload)
			if err != nil {
				logger.Warn().Err(err).Str("topic", msg.Topic).Msg("encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
