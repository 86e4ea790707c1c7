package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pkordes/ecopool/backend/internal/domain"
)

// ErrorDetail is the body of an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope every non-2xx JSON response uses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

var (
	errUnauthenticated = errors.New("missing bearer token")
	errBodyTooLarge    = errors.New("request body exceeds the size limit")
)

// errorMapping ties a sentinel to its HTTP status and error code.
// Order matters only for errors that wrap more than one sentinel.
var errorMapping = []struct {
	sentinel error
	status   int
	code     string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrInsufficientSeats, http.StatusConflict, "insufficient_seats"},
	{domain.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{domain.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrTransient, http.StatusServiceUnavailable, "transient"},
	{errUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{errBodyTooLarge, http.StatusRequestEntityTooLarge, "body_too_large"},
}

// writeError maps err to a status and writes the error envelope.
// Unmapped errors are logged and reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.sentinel) {
			writeJSON(w, m.status, ErrorResponse{Error: ErrorDetail{Code: m.code, Message: unwrapMessage(err, m.sentinel)}})
			return
		}
	}
	s.logger.ErrorContext(r.Context(), "unhandled error",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{Code: "internal", Message: "internal server error"}})
}

// unwrapMessage extracts the human-readable part that follows the sentinel
// in a wrapped error.
// e.g. "service.TripService.Create: validation error: capacity must be at least 1" → "capacity must be at least 1"
func unwrapMessage(err, sentinel error) string {
	msg := err.Error()
	label := sentinel.Error()
	i := strings.LastIndex(msg, label)
	if i < 0 {
		return msg
	}
	if rest := msg[i+len(label):]; strings.HasPrefix(rest, ": ") {
		return rest[2:]
	}
	return label
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
