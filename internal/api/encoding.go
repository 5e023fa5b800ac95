// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/cuepoint/internal/domain/model"
)

func (s *Server) handleStartEncoding(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.StreamID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: streamId is required", model.ErrValidation))
		return
	}
	sess, err := s.encoding.Start(r.Context(), req.StreamID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/encoding/"+sess.ID)
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) handleStopEncoding(w http.ResponseWriter, r *http.Request) {
	sess, err := s.encoding.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newSessionResponse(sess))
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.encoding.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.encoding.ListActiveSessionIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionIds": ids})
}

// handleListSessions accepts a comma separated ?status= filter.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var statuses []model.SessionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := model.SessionStatus(strings.ToUpper(strings.TrimSpace(part)))
			switch st {
			case model.SessionStarting, model.SessionRunning, model.SessionStopping,
				model.SessionCompleted, model.SessionError:
				statuses = append(statuses, st)
			default:
				s.writeError(w, r, fmt.Errorf("%w: unknown session status %q", model.ErrValidation, part))
				return
			}
		}
	}
	sessions, err := s.encoding.Sessions(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, newSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, out)
}
