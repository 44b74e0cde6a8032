package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/mhi-hvac-core/internal/bridge"
	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

// Error represents a structured error response.
type Error struct {
	Status     int              `json:"status"`
	Code       string           `json:"code"`
	Message    string           `json:"message"`
	Violations []hvac.Violation `json:"violations,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "service_unavailable"
	ErrCodeWriteFailed = "write_failed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps an hvac service error to an HTTP response.
// The classification is shared with MQTT acknowledgements.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		status int
		code   string
	)
	switch bridge.ErrorCode(err) {
	case bridge.ErrCodeNotFound:
		status, code = http.StatusNotFound, ErrCodeNotFound
	case bridge.ErrCodeValidationFailed:
		status, code = http.StatusUnprocessableEntity, ErrCodeValidation
	case bridge.ErrCodeInvalidParameters, bridge.ErrCodeInvalidCommand:
		status, code = http.StatusBadRequest, ErrCodeBadRequest
	case bridge.ErrCodeControllerOffline:
		status, code = http.StatusServiceUnavailable, ErrCodeUnavailable
	case bridge.ErrCodeWriteFailed:
		status, code = http.StatusBadGateway, ErrCodeWriteFailed
	default:
		status, code = http.StatusInternalServerError, ErrCodeInternal
	}

	resp := Error{Status: status, Code: code, Message: err.Error()}
	var ve *hvac.ValidationError
	if errors.As(err, &ve) {
		resp.Violations = ve.Violations
	}
	writeJSON(w, status, resp)
}
