package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/kvstore"
	"family-calendar-backend/internal/models"
	"family-calendar-backend/internal/repository"
	"family-calendar-backend/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	activeFamilyPrefix = "active_family:"
	cachedEventsPrefix = "cached_events:"
)

// PreferenceService stores per-user selections: the active family and the
// last fetched event list. Stale values are tolerated; a re-fetch replaces them.
type PreferenceService struct {
	store   kvstore.Store
	members MemberStore
}

// NewPreferenceService creates a new preference service
func NewPreferenceService(store kvstore.Store, members MemberStore) *PreferenceService {
	return &PreferenceService{store: store, members: members}
}

// ActiveFamily returns the caller's active family id, or "" when none is selected
func (s *PreferenceService) ActiveFamily(ctx context.Context) (string, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return "", apperrors.Authentication("you must be signed in")
	}
	value, err := s.store.Get(ctx, activeFamilyPrefix+sess.UserID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Internal("could not read active family", err)
	}
	return string(value), nil
}

// SetActiveFamily selects a family the caller belongs to
func (s *PreferenceService) SetActiveFamily(ctx context.Context, familyID string) error {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return apperrors.Authentication("you must be signed in")
	}
	if _, err := uuid.Parse(familyID); err != nil {
		return apperrors.ValidationWithDetails("invalid family id", map[string]string{"family_id": "must be a valid id"})
	}

	if _, err := s.members.GetMembership(ctx, familyID, sess.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Authorization("you are not a member of this family")
		}
		return apperrors.Persistence("could not verify family membership", err)
	}

	if err := s.store.Set(ctx, activeFamilyPrefix+sess.UserID, []byte(familyID)); err != nil {
		return apperrors.Internal("could not save active family", err)
	}
	log.Debug().Str("user_id", sess.UserID).Str("family_id", familyID).Msg("Active family selected")
	return nil
}

// ClearActiveFamily removes the caller's selection
func (s *PreferenceService) ClearActiveFamily(ctx context.Context) error {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return apperrors.Authentication("you must be signed in")
	}
	if err := s.store.Remove(ctx, activeFamilyPrefix+sess.UserID); err != nil {
		return apperrors.Internal("could not clear active family", err)
	}
	return nil
}

// StoreEvents caches a user's event list
func (s *PreferenceService) StoreEvents(ctx context.Context, userID string, events []models.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	return s.store.Set(ctx, cachedEventsPrefix+userID, data)
}

// CachedEvents returns the caller's last fetched event list, empty if none was cached
func (s *PreferenceService) CachedEvents(ctx context.Context) ([]models.Event, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in")
	}
	data, err := s.store.Get(ctx, cachedEventsPrefix+sess.UserID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []models.Event{}, nil
	}
	if err != nil {
		return nil, apperrors.Internal("could not read cached events", err)
	}

	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		log.Warn().Err(err).Str("user_id", sess.UserID).Msg("Discarding unreadable event cache")
		return []models.Event{}, nil
	}
	return nonNil(events), nil
}
