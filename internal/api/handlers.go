package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"commbus/internal/request"
	"commbus/internal/storage"
)

type dispatchResponse struct {
	ID string `json:"id"`
}

type errorsResponse struct {
	Errors []storage.ErrorRecord `json:"errors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "message": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var d request.Description
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDispatchBytes))
	if err := dec.Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request description: "+err.Error())
		return
	}
	if strings.TrimSpace(d.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	// The id is returned to the caller so it can be matched against logs.
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	if err := s.bus.Publish(r.Context(), s.dispatchSubject, &d); err != nil {
		s.logger.Error("Failed to publish dispatch", "id", d.ID, "error", err)
		writeError(w, http.StatusBadGateway, "dispatch failed")
		return
	}
	writeJSON(w, http.StatusAccepted, dispatchResponse{ID: d.ID})
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit := defaultErrorLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxErrorLimit {
		limit = maxErrorLimit
	}

	recs, err := s.errors.Recent(limit)
	if err != nil {
		s.logger.Error("Failed to read error journal", "error", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if recs == nil {
		recs = []storage.ErrorRecord{}
	}
	writeJSON(w, http.StatusOK, errorsResponse{Errors: recs})
}

func (s *Server) handleErrorByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.errors.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "error record not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to read error journal", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError answers with the same {"message": ...} schema the interceptor
// decodes from upstream failures.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
