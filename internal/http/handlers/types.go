// Package handlers provides the HTTP API handlers for vidmorph.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidmorph/vidmorph/internal/models"
)

// errorBody is the JSON error shape for the raw chi handlers. The huma
// handlers produce RFC 7807 problems on their own.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSONError writes a JSON error response with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message})
}

// statusForError maps the domain error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUploadRejected):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrJobNotFound), errors.Is(err, models.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
