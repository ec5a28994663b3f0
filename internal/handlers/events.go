package handlers

import (
	"net/http"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/middleware"
	"family-calendar-backend/internal/models"
	"family-calendar-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// EventHandler handles event-related HTTP requests
type EventHandler struct {
	eventService      *services.EventService
	exportService     *services.ExportService
	preferenceService *services.PreferenceService
}

// NewEventHandler creates a new event handler. exportService may be nil when
// no export bucket is configured.
func NewEventHandler(
	eventService *services.EventService,
	exportService *services.ExportService,
	preferenceService *services.PreferenceService,
) *EventHandler {
	return &EventHandler{
		eventService:      eventService,
		exportService:     exportService,
		preferenceService: preferenceService,
	}
}

// DeleteFailure is the body of a failed delete
type DeleteFailure struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    apperrors.Code `json:"code"`
}

// GetEvents handles GET /api/v1/events
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	result := h.eventService.Fetch(r.Context())
	respondJSON(w, http.StatusOK, result)
}

// GetCachedEvents handles GET /api/v1/events/cached
func (h *EventHandler) GetCachedEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.preferenceService.CachedEvents(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, services.FetchResult{Events: events})
}

// CreateEvent handles POST /api/v1/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.Event
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.eventService.Create(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("user_id", middleware.GetUserID(r)).Msg("Failed to create event")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// UpdateEvent handles PUT /api/v1/events/{event_id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "event_id")

	var req models.Event
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.eventService.Update(r.Context(), eventID, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", middleware.GetUserID(r)).
			Str("event_id", eventID).
			Msg("Failed to update event")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// DeleteEvent handles DELETE /api/v1/events/{event_id}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "event_id")

	result, err := h.eventService.Delete(r.Context(), eventID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", middleware.GetUserID(r)).
			Str("event_id", eventID).
			Msg("Failed to delete event")
		respondJSON(w, statusFor(err), DeleteFailure{
			Success: false,
			Error:   apperrors.Message(err),
			Code:    apperrors.CodeOf(err),
		})
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ExportEvents handles POST /api/v1/events/export
func (h *EventHandler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	if h.exportService == nil {
		respondError(w, "Calendar export is not configured", http.StatusServiceUnavailable)
		return
	}

	resp, err := h.exportService.ExportCalendar(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
