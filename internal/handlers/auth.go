package handlers

import (
	"net/http"

	"family-calendar-backend/internal/middleware"
	"family-calendar-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// AuthHandler handles session requests
type AuthHandler struct {
	sessionService *services.SessionService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessionService *services.SessionService) *AuthHandler {
	return &AuthHandler{sessionService: sessionService}
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.sessionService.Refresh(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, refreshed)
}

// SignOut handles POST /api/v1/auth/signout. Tokens are stateless, so the
// client discards its token and nothing is revoked server-side.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	log.Info().Str("user_id", middleware.GetUserID(r)).Msg("User signed out")
	w.WriteHeader(http.StatusNoContent)
}
