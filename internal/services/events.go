package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/mapper"
	"family-calendar-backend/internal/models"
	"family-calendar-backend/internal/repository"
	"family-calendar-backend/internal/session"
	"family-calendar-backend/internal/validation"

	"github.com/rs/zerolog/log"
)

// Notifier pushes a message to whichever of the users are connected
type Notifier interface {
	Broadcast(userIDs []string, message WSMessage) int
}

// EventCache keeps the last fetched event list of a user
type EventCache interface {
	StoreEvents(ctx context.Context, userID string, events []models.Event) error
}

// EventResult is a created or updated event plus any warnings from the
// best-effort steps that followed the write.
type EventResult struct {
	Event    *models.Event `json:"data"`
	Warnings Warnings      `json:"warnings,omitempty"`
}

// DeleteResult confirms a deletion
type DeleteResult struct {
	Success   bool     `json:"success"`
	EventID   string   `json:"event_id"`
	EventName string   `json:"event_name"`
	Message   string   `json:"message"`
	Warnings  Warnings `json:"warnings,omitempty"`
}

// EventService handles event-related business logic
type EventService struct {
	events    EventStore
	links     EventFamilyStore
	members   MemberStore
	profiles  ProfileStore
	functions FunctionCaller
	verifier  *AccessVerifier
	notifier  Notifier
	cache     EventCache
	retry     RetryPolicy
	validator *validation.Validator
}

// NewEventService creates a new event service. notifier and cache may be nil.
func NewEventService(
	events EventStore,
	links EventFamilyStore,
	members MemberStore,
	profiles ProfileStore,
	functions FunctionCaller,
	notifier Notifier,
	cache EventCache,
	retry RetryPolicy,
) *EventService {
	return &EventService{
		events:    events,
		links:     links,
		members:   members,
		profiles:  profiles,
		functions: functions,
		verifier:  NewAccessVerifier(events, functions),
		notifier:  notifier,
		cache:     cache,
		retry:     retry,
		validator: validation.New(),
	}
}

// Verifier returns the access verifier the service gates mutations with
func (s *EventService) Verifier() *AccessVerifier {
	return s.verifier
}

// Create stores a new event owned by the caller and shares it with the
// requested families. Only the event insert can fail the call; sharing and
// notification failures come back as warnings.
func (s *EventService) Create(ctx context.Context, input models.Event) (result *EventResult, err error) {
	defer guard("create event", &err)

	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in to create events")
	}
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	rec := mapper.ToWireEvent(input, sess.UserID)
	created, err := s.events.Insert(ctx, &rec)
	if err != nil {
		log.Error().Err(err).Str("user_id", sess.UserID).Msg("Failed to create event")
		return nil, apperrors.Persistence("could not create event", err)
	}
	if created == nil {
		return nil, apperrors.Persistence("could not create event: no row returned", nil)
	}

	log.Info().
		Str("user_id", sess.UserID).
		Str("event_id", created.ID).
		Int("families", len(input.FamilyIDs)).
		Msg("Event created")

	var linked []string
	var effects []sideEffect
	if len(input.FamilyIDs) > 0 {
		effects = append(effects, sideEffect{
			name: "Sharing with families",
			run: func(ctx context.Context) error {
				var err error
				linked, err = s.linkFamilies(ctx, created.ID, input.FamilyIDs, sess.UserID)
				return err
			},
		})
	}
	effects = append(effects, s.notifyEffect("event_created", created.ID, created.Name, sess.UserID,
		func(context.Context) ([]string, error) { return linked, nil }))

	warnings := runSideEffects(ctx, effects)

	event := s.toDomain(ctx, *created)
	event.FamilyIDs = linked
	return &EventResult{Event: &event, Warnings: warnings}, nil
}

// Update overwrites an event the caller created. When input.FamilyIDs is
// non-nil the event's family links are replaced: old links are deleted, then
// the new set is inserted. Neither step is atomic with the event update and
// both degrade to warnings.
func (s *EventService) Update(ctx context.Context, eventID string, input models.Event) (result *EventResult, err error) {
	defer guard("update event", &err)

	own, err := s.verifier.requireOwner(ctx, eventID, "edit")
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	// Keep the stored creator so an update never reassigns ownership.
	rec := mapper.ToWireEvent(input, own.Event.CreatorID)
	updated, err := s.events.Update(ctx, eventID, &rec)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("event not found")
		}
		log.Error().Err(err).Str("event_id", eventID).Msg("Failed to update event")
		return nil, apperrors.Persistence("could not update event", err)
	}

	log.Info().
		Str("user_id", own.Session.UserID).
		Str("event_id", eventID).
		Msg("Event updated")

	var linked []string
	var effects []sideEffect
	families := func(ctx context.Context) ([]string, error) {
		return s.links.FamilyIDsForEvent(ctx, eventID)
	}
	if input.FamilyIDs != nil {
		effects = append(effects,
			sideEffect{
				name: "Removing previous family sharing",
				run: func(ctx context.Context) error {
					if _, err := s.links.DeleteByEvent(ctx, eventID); err != nil {
						return apperrors.Persistence("could not remove old family links", err)
					}
					return nil
				},
			},
			sideEffect{
				name: "Sharing with families",
				run: func(ctx context.Context) error {
					if len(input.FamilyIDs) == 0 {
						linked = []string{}
						return nil
					}
					var err error
					linked, err = s.linkFamilies(ctx, eventID, input.FamilyIDs, own.Session.UserID)
					return err
				},
			},
		)
		families = func(context.Context) ([]string, error) { return linked, nil }
	}
	effects = append(effects, s.notifyEffect("event_updated", eventID, updated.Name, own.Session.UserID, families))

	warnings := runSideEffects(ctx, effects)

	event := s.toDomain(ctx, *updated)
	event.FamilyIDs = linked
	return &EventResult{Event: &event, Warnings: warnings}, nil
}

// Delete removes an event the caller created together with its family links
func (s *EventService) Delete(ctx context.Context, eventID string) (result *DeleteResult, err error) {
	defer guard("delete event", &err)

	own, err := s.verifier.requireOwner(ctx, eventID, "delete")
	if err != nil {
		return nil, err
	}

	familyIDs, err := s.links.FamilyIDsForEvent(ctx, eventID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to list event families before delete")
	}
	if _, err := s.links.DeleteByEvent(ctx, eventID); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to delete event family links, continuing")
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("event not found")
		}
		log.Error().Err(err).Str("event_id", eventID).Msg("Failed to delete event")
		return nil, apperrors.Persistence("could not delete event", err)
	}

	log.Info().
		Str("user_id", own.Session.UserID).
		Str("event_id", eventID).
		Msg("Event deleted")

	warnings := runSideEffects(ctx, []sideEffect{
		s.notifyEffect("event_deleted", eventID, own.EventName, own.Session.UserID,
			func(context.Context) ([]string, error) { return familyIDs, nil }),
	})

	return &DeleteResult{
		Success:   true,
		EventID:   eventID,
		EventName: own.EventName,
		Message:   fmt.Sprintf("%q has been deleted", own.EventName),
		Warnings:  warnings,
	}, nil
}

// linkFamilies resolves ids (family ids or family member ids) to the families
// the caller belongs to and links the event to each distinct one.
func (s *EventService) linkFamilies(ctx context.Context, eventID string, ids []string, userID string) ([]string, error) {
	resolved, err := s.members.ResolveFamilyIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Persistence("could not look up the selected families", err)
	}
	memberships, err := s.members.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Persistence("could not look up your families", err)
	}
	allowed := make(map[string]struct{}, len(memberships))
	for _, m := range memberships {
		allowed[m.FamilyID] = struct{}{}
	}

	familyIDs, skipped := uniqueFamilyIDs(ids, resolved, allowed)
	if len(familyIDs) > 0 {
		if _, err := s.links.InsertForEvent(ctx, eventID, familyIDs, userID); err != nil {
			return nil, apperrors.Persistence("could not share the event with your families", err)
		}
	}
	if skipped > 0 {
		return familyIDs, apperrors.NotFoundf("%d of the selected families could not be found", skipped)
	}
	return familyIDs, nil
}

// uniqueFamilyIDs returns the distinct resolved family ids in input order and
// the number of ids that did not resolve to a family in allowed.
func uniqueFamilyIDs(ids []string, resolved map[string]string, allowed map[string]struct{}) ([]string, int) {
	seen := make(map[string]struct{}, len(ids))
	familyIDs := make([]string, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		familyID, ok := resolved[id]
		if !ok {
			skipped++
			continue
		}
		if _, ok := allowed[familyID]; !ok {
			skipped++
			continue
		}
		if _, dup := seen[familyID]; dup {
			continue
		}
		seen[familyID] = struct{}{}
		familyIDs = append(familyIDs, familyID)
	}
	return familyIDs, skipped
}

// notifyEffect tells the other members of the event's families about a change
func (s *EventService) notifyEffect(
	kind, eventID, eventName, actorID string,
	families func(context.Context) ([]string, error),
) sideEffect {
	return sideEffect{
		name: "Notifying family members",
		run: func(ctx context.Context) error {
			if s.notifier == nil {
				return nil
			}
			familyIDs, err := families(ctx)
			if err != nil {
				return apperrors.Persistence("could not look up the event's families", err)
			}
			if len(familyIDs) == 0 {
				return nil
			}
			audience, err := s.audience(ctx, familyIDs, actorID)
			if err != nil {
				return apperrors.Persistence("could not look up family members", err)
			}
			sent := s.notifier.Broadcast(audience, WSMessage{
				Type:      kind,
				Timestamp: time.Now().UnixMilli(),
				EventID:   eventID,
				EventName: eventName,
				FamilyIDs: familyIDs,
				ActorID:   actorID,
			})
			log.Debug().Str("event_id", eventID).Str("type", kind).Int("sent", sent).Msg("Family members notified")
			return nil
		},
	}
}

// audience returns the distinct members of the families other than the actor
func (s *EventService) audience(ctx context.Context, familyIDs []string, actorID string) ([]string, error) {
	seen := map[string]struct{}{actorID: {}}
	var userIDs []string
	for _, familyID := range familyIDs {
		members, err := s.members.ListByFamily(ctx, familyID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if _, ok := seen[m.UserID]; ok {
				continue
			}
			seen[m.UserID] = struct{}{}
			userIDs = append(userIDs, m.UserID)
		}
	}
	return userIDs, nil
}

// toDomain maps one row, resolving its creator's display name best-effort
func (s *EventService) toDomain(ctx context.Context, rec models.EventRecord) models.Event {
	return mapper.FromWireEvent(rec, s.profileLookup(ctx, mapper.CreatorIDs([]models.EventRecord{rec})))
}

// profileLookup batch-fetches profiles. It never calls the store with an
// empty id list and degrades to an empty lookup on failure.
func (s *EventService) profileLookup(ctx context.Context, ids []string) map[string]models.UserProfile {
	if len(ids) == 0 {
		return nil
	}
	profiles, err := s.profiles.GetByIDs(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Int("count", len(ids)).Msg("Failed to load creator profiles")
		return nil
	}
	return mapper.ProfileLookup(profiles)
}
