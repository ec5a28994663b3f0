package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "family-calendar-backend/internal/errors"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    apperrors.Code `json:"code,omitempty"`
	Details any            `json:"details,omitempty"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondDomainError maps a service error to its status and user-facing message
func respondDomainError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), errorBody(err))
}

func statusFor(err error) int {
	return apperrors.CodeOf(err).HTTPStatus()
}

func errorBody(err error) ErrorResponse {
	body := ErrorResponse{Error: apperrors.Message(err), Code: apperrors.CodeOf(err)}
	var domainErr *apperrors.Error
	if apperrors.As(err, &domainErr) {
		body.Details = domainErr.Details
	}
	return body
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
