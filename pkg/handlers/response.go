// Package handlers implements the HTTP API surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteServiceError maps service-layer errors onto HTTP status codes and
// logs anything that surfaces as a 500.
func WriteServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrEmbeddingUnavailable):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("Request failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
