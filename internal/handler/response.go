package handler

// RESPONSE HELPERS:
// Actions answer with a redirect when they succeed. When they cannot run at
// all (a malformed id, an unknown user, a rating out of range) they answer
// with the same JSON error envelope everywhere:
//
//	{"error": "validation_error", "message": "rating must be between 1 and 5"}

import (
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/sakif/bookshelf/internal/apperror"
)

// ErrorResponse is the error envelope returned by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable type, e.g. "validation_error"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends data as JSON with the given status.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends the envelope.
//
// errors.Is walks the whole chain, so a wrapped
// fmt.Errorf("...: %w", apperror.ValidationFailed(...)) still maps to 400.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Never echo internal error text to the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
