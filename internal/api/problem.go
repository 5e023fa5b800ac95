// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuGH/cuepoint/internal/api/middleware"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/log"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Debug().Err(err).Msg("encode response")
	}
}

// writeProblem writes an RFC 7807 problem document.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string, extra ...map[string]any) {
	body := map[string]any{
		"type":   "about:blank",
		"title":  http.StatusText(status),
		"status": status,
		"code":   code,
	}
	if detail != "" {
		body["detail"] = detail
	}
	if r != nil {
		body["instance"] = r.URL.EscapedPath()
		if id := log.RequestIDFromContext(r.Context()); id != "" {
			body["requestId"] = id
		}
	}
	for _, e := range extra {
		for k, v := range e {
			if _, reserved := body[k]; !reserved {
				body[k] = v
			}
		}
	}
	if id := w.Header().Get(middleware.HeaderRequestID); id != "" && body["requestId"] == nil {
		body["requestId"] = id
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error onto a problem response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch kind {
	case model.KindValidation:
		status, code = http.StatusBadRequest, "VALIDATION"
	case model.KindNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	case model.KindConflict:
		status, code = http.StatusConflict, "CONFLICT"
	case model.KindResource:
		code = "RESOURCE"
	}

	extra := map[string]any{}
	var (
		already   *model.AlreadyEncodingError
		notActive *model.NotActiveError
		cannot    *model.CannotCancelError
		sessNA    *model.SessionNotActiveError
	)
	switch {
	case errors.As(err, &already):
		code = "ALREADY_ENCODING"
		extra["sessionId"] = already.SessionID
	case errors.As(err, &notActive):
		code = "NOT_ACTIVE"
		extra["currentStatus"] = notActive.Status
	case errors.As(err, &cannot):
		code = "CANNOT_CANCEL"
		extra["currentStatus"] = cannot.Status
	case errors.As(err, &sessNA):
		code = "SESSION_NOT_ACTIVE"
		extra["currentStatus"] = sessNA.Status
	}

	logger := log.WithContext(r.Context(), s.logger)
	ev := logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).Str("kind", kind.String()).Int("status", status).Str("route", r.URL.Path).Msg("request failed")

	writeProblem(w, r, status, code, err.Error(), extra)
}

// decodeJSON reads a single JSON object with unknown fields rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", model.ErrValidation, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body must contain a single JSON object", model.ErrValidation)
	}
	return nil
}
