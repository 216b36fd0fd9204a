// Package api provides HTTP response utilities for CoachPipe.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// Pre-marshaled fallback response to avoid runtime JSON encoding failures
var fallbackErrorResponse []byte

// init validates that the fallback response can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForError maps domain sentinel errors to HTTP status codes and
// client-safe messages.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, models.ErrPersonaNotFound):
		return http.StatusNotFound, "Persona not found"
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidResponseKind):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNodeRequired):
		return http.StatusConflict, "Current question is required and cannot be skipped"
	case errors.Is(err, models.ErrProvider), errors.Is(err, models.ErrInvalidPersonaResponse):
		return http.StatusBadGateway, "Persona generation failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
