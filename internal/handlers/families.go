package handlers

import (
	"net/http"
	"strings"

	"family-calendar-backend/internal/middleware"
	"family-calendar-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// FamilyHandler handles family-related HTTP requests
type FamilyHandler struct {
	familyService *services.FamilyService
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(familyService *services.FamilyService) *FamilyHandler {
	return &FamilyHandler{familyService: familyService}
}

// InviteRequest represents the request body for inviting members
type InviteRequest struct {
	Members []services.MemberInput `json:"members"`
}

// ResendRequest represents the request body for resending an invitation
type ResendRequest struct {
	Email string `json:"email"`
}

// GetFamilies handles GET /api/v1/families
func (h *FamilyHandler) GetFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := h.familyService.ListFamilies(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": families})
}

// CreateFamily handles POST /api/v1/families
func (h *FamilyHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req services.CreateFamilyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.familyService.CreateFamily(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("user_id", middleware.GetUserID(r)).Msg("Failed to create family")
		respondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

// GetMembers handles GET /api/v1/families/members?ids=a,b
func (h *FamilyHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	var familyIDs []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			familyIDs = append(familyIDs, id)
		}
	}
	if len(familyIDs) == 0 {
		respondError(w, "ids is required", http.StatusBadRequest)
		return
	}

	members, err := h.familyService.ListMembers(r.Context(), familyIDs)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": members})
}

// InviteMembers handles POST /api/v1/families/{family_id}/invitations
func (h *FamilyHandler) InviteMembers(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "family_id")

	var req InviteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	invitations, err := h.familyService.InviteMembers(r.Context(), familyID, req.Members)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", middleware.GetUserID(r)).
			Str("family_id", familyID).
			Msg("Failed to invite members")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"data": invitations})
}

// ResendInvitation handles POST /api/v1/families/{family_id}/invitations/resend
func (h *FamilyHandler) ResendInvitation(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "family_id")

	var req ResendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	invitation, err := h.familyService.ResendInvitation(r.Context(), familyID, req.Email)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": invitation})
}
