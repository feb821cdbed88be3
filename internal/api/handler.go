// Package api provides HTTP handlers for the Symbiote session API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/symbiote-ai/symbiote/internal/session"
)

// maxRequestBodySize caps request payloads (1MB).
const maxRequestBodySize = 1 << 20

// Handler exposes the session manager over HTTP.
type Handler struct {
	sessions *session.Manager
}

// NewHandler creates a new Handler over the session manager.
func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// fail maps session manager errors onto HTTP status codes.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrTaskNotFound):
		Error(w, http.StatusNotFound, "task not found")
	case errors.Is(err, session.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case session.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode parses a bounded JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
