// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			writeProblem(w, r, http.StatusServiceUnavailable, "UNHEALTHY", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	s.ready.ServeReady(w, r)
}

type systemStatus struct {
	Version        string         `json:"version,omitempty"`
	Uptime         float64        `json:"uptime"`
	Streams        map[string]int `json:"streams"`
	ActiveSessions int            `json:"activeSessions"`
	AdBreaks       map[string]int `json:"adBreaks"`
	PendingTimers  int            `json:"pendingTimers"`
	Time           time.Time      `json:"time"`
}

// handleSystemStatus summarizes streams, sessions and ad breaks.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streams, err := s.streams.ListStreams(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	breaks, err := s.adBreaks.List(ctx, model.AdBreakScheduled, model.AdBreakTriggered)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := s.clock.Now()
	out := systemStatus{
		Version:        s.cfg.Version,
		Uptime:         now.Sub(s.startedAt).Seconds(),
		Streams:        map[string]int{},
		ActiveSessions: len(s.encoding.ListActiveSessionIDs()),
		AdBreaks: map[string]int{
			string(model.AdBreakScheduled): 0,
			string(model.AdBreakTriggered): 0,
		},
		PendingTimers: len(s.adBreaks.Pending()),
		Time:          now,
	}
	for _, st := range streams {
		out.Streams[string(st.Status)]++
	}
	for _, b := range breaks {
		out.AdBreaks[string(b.Status)]++
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, []auditResponse{})
		return
	}
	limit, err := parseLimit(r, 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.audit.ListAudit(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			ID:        e.ID,
			Level:     string(e.Level),
			Component: e.Component,
			Message:   e.Message,
			Metadata:  e.Metadata,
			At:        e.At,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
