// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/ffmpeg"
	"github.com/ManuGH/cuepoint/internal/log"
)

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.streams.ListStreams(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]streamResponse, 0, len(streams))
	for _, st := range streams {
		out = append(out, newStreamResponse(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	st, err := s.streams.GetStream(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStreamResponse(st))
}

// handlePutStream upserts a stream configuration. A stream with a live
// encoder keeps its configuration until the session ends.
func (s *Server) handlePutStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req streamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg := req.Config.toModel()
	if _, err := ffmpeg.BuildArgs(cfg); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	created := false
	existing, err := s.streams.GetStream(ctx, id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		created = true
	case err != nil:
		s.writeError(w, r, err)
		return
	case existing.Status == model.StreamEncoding || existing.Status == model.StreamStopping:
		s.writeError(w, r, fmt.Errorf("%w: stream %q is %s", model.ErrConflict, id, existing.Status))
		return
	}

	name := req.Name
	if name == "" {
		name = id
	}
	if err := s.streams.PutStream(ctx, &model.Stream{ID: id, Name: name, Status: model.StreamIdle, Config: cfg}); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.streams.GetStream(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l := log.WithContext(ctx, s.logger)
	l.Info().
		Str(log.FieldStreamID, id).
		Bool("created", created).
		Msg("stream configuration saved")
	s.appendAudit(r, model.AuditInfo, "stream configuration saved", map[string]any{"streamId": id})

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, newStreamResponse(st))
}

func (s *Server) appendAudit(r *http.Request, level model.AuditLevel, msg string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.AppendAudit(r.Context(), model.AuditEntry{
		Level:     level,
		Component: "api",
		Message:   msg,
		Metadata:  meta,
		At:        s.clock.Now(),
	})
	if err != nil {
		l := log.WithContext(r.Context(), s.logger)
		l.Warn().Err(err).Msg("append audit entry")
	}
}
