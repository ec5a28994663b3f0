package handlers

import (
	"net/http"

	"family-calendar-backend/internal/services"
)

// PreferenceHandler handles per-user preference requests
type PreferenceHandler struct {
	preferenceService *services.PreferenceService
}

// NewPreferenceHandler creates a new preference handler
func NewPreferenceHandler(preferenceService *services.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferenceService: preferenceService}
}

// ActiveFamilyBody is the request and response body of the active family routes
type ActiveFamilyBody struct {
	FamilyID string `json:"family_id"`
}

// GetActiveFamily handles GET /api/v1/preferences/active-family
func (h *PreferenceHandler) GetActiveFamily(w http.ResponseWriter, r *http.Request) {
	familyID, err := h.preferenceService.ActiveFamily(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ActiveFamilyBody{FamilyID: familyID})
}

// SetActiveFamily handles PUT /api/v1/preferences/active-family
func (h *PreferenceHandler) SetActiveFamily(w http.ResponseWriter, r *http.Request) {
	var req ActiveFamilyBody
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.preferenceService.SetActiveFamily(r.Context(), req.FamilyID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// ClearActiveFamily handles DELETE /api/v1/preferences/active-family
func (h *PreferenceHandler) ClearActiveFamily(w http.ResponseWriter, r *http.Request) {
	if err := h.preferenceService.ClearActiveFamily(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
