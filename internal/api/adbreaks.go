// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

const (
	defaultMarkerLimit = 50
	maxListLimit       = 1000
)

func (s *Server) handleScheduleAdBreak(w http.ResponseWriter, r *http.Request) {
	var req adBreakRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.adBreaks.Schedule(r.Context(), req.toModel())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/adbreaks/"+b.ID)
	writeJSON(w, http.StatusCreated, newAdBreakResponse(b))
}

// handleListAdBreaks accepts ?status= with a lifecycle state or the aliases
// scheduled and active.
func (s *Server) handleListAdBreaks(w http.ResponseWriter, r *http.Request) {
	var statuses []model.AdBreakStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := model.ParseAdBreakStatus(raw)
		switch {
		case raw == "active":
			st, ok = model.AdBreakTriggered, true
		case !ok:
			s.writeError(w, r, fmt.Errorf("%w: unknown status %q", model.ErrValidation, raw))
			return
		}
		statuses = append(statuses, st)
	}
	bs, err := s.adBreaks.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdBreakList(bs))
}

func (s *Server) handleGetAdBreak(w http.ResponseWriter, r *http.Request) {
	b, err := s.adBreaks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdBreakResponse(b))
}

func (s *Server) handleCancelAdBreak(w http.ResponseWriter, r *http.Request) {
	b, err := s.adBreaks.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdBreakResponse(b))
}

func (s *Server) handleCrashOut(w http.ResponseWriter, r *http.Request) {
	b, err := s.adBreaks.CrashOut(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdBreakResponse(b))
}

func (s *Server) handleAdBreakMarkers(w http.ResponseWriter, r *http.Request) {
	ms, err := s.adBreaks.Markers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarkerList(ms))
}

func (s *Server) handleRecentMarkers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultMarkerLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ms, err := s.adBreaks.RecentMarkers(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarkerList(ms))
}

func (s *Server) handlePendingTimers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.adBreaks.Pending())
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", model.ErrValidation)
	}
	return min(n, maxListLimit), nil
}
