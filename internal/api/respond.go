package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/middleware"
)

// envelope is a JSON response body. Every body carries a "message".
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

// writeSuccess writes {message, ...payload}
func writeSuccess(w http.ResponseWriter, status int, message string, payload envelope) {
	body := envelope{"message": message}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeError writes {message, error} with the status for err's kind
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[API] %s %s [%s]: %v", r.Method, r.URL.Path, middleware.RequestID(r.Context()), err)
		writeJSON(w, status, envelope{"message": "Server error", "error": "internal error"})
		return
	}
	writeJSON(w, status, envelope{"message": err.Error(), "error": kindOf(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInsufficientStock),
		errors.Is(err, apperr.ErrCartEmpty),
		errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	for _, kind := range []error{
		apperr.ErrNotFound, apperr.ErrInsufficientStock, apperr.ErrCartEmpty, apperr.ErrValidation,
		apperr.ErrConflict, apperr.ErrUnauthorized, apperr.ErrForbidden,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal error"
}

// decodeJSON reads the request body into dst
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperr.ErrForbidden)
}
