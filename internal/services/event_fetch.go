package services

import (
	"context"
	"errors"
	"fmt"

	"family-calendar-backend/internal/mapper"
	"family-calendar-backend/internal/models"
	"family-calendar-backend/internal/repository"
	"family-calendar-backend/internal/session"

	"github.com/rs/zerolog/log"
)

// Fetch strategies, in order of preference
const (
	StrategyUnified  = "unified_rpc"
	StrategyCombined = "combined_query"
	StrategyPersonal = "personal_only"
)

// FetchResult is the outcome of an event fetch. Error is set only when no
// strategy produced events; Events is then empty, never nil.
type FetchResult struct {
	Events   []models.Event `json:"events"`
	Error    *string        `json:"error"`
	Strategy string         `json:"-"`
}

type fetched struct {
	rows     []models.EventRecord
	strategy string
}

// Fetch returns every event the caller may see. It prefers the single
// server-side function, then a two-step personal plus family query, retrying
// that pair under the retry policy, and finally falls back to the caller's
// own events. It never returns an error value; failures are reported in
// FetchResult.Error.
func (s *EventService) Fetch(ctx context.Context) (result FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic while fetching events")
			result = failedFetch("could not load events")
		}
	}()

	sess, ok := session.FromContext(ctx)
	if !ok {
		return failedFetch("you must be signed in to view events")
	}
	logger := log.With().Str("user_id", sess.UserID).Logger()

	got, err := retry(ctx, s.retry, func() (fetched, error) {
		return s.fetchAccessible(ctx, sess.UserID)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Shared event fetch failed, falling back to personal events")
		rows, err := s.events.ListByCreator(ctx, sess.UserID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to fetch personal events")
			return failedFetch("could not load events")
		}
		got = fetched{rows: rows, strategy: StrategyPersonal}
	}

	events := s.mapRecords(ctx, got.rows)
	logger.Debug().Str("strategy", got.strategy).Int("count", len(events)).Msg("Events fetched")

	if s.cache != nil {
		if err := s.cache.StoreEvents(ctx, sess.UserID, events); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache events")
		}
	}

	return FetchResult{Events: events, Strategy: got.strategy}
}

// fetchAccessible runs the unified strategy and, when it is unavailable or
// comes back empty, the combined strategy. An error means the combined
// strategy failed.
func (s *EventService) fetchAccessible(ctx context.Context, userID string) (fetched, error) {
	rows, err := s.functions.AccessibleEvents(ctx, userID)
	switch {
	case err == nil && len(rows) > 0:
		return fetched{rows: rows, strategy: StrategyUnified}, nil
	case errors.Is(err, repository.ErrFunctionUnavailable):
		log.Debug().Msg("Accessible events function unavailable")
	case err != nil:
		log.Warn().Err(err).Str("user_id", userID).Msg("Accessible events function failed")
	}

	memberships, err := s.members.ListByUser(ctx, userID)
	if err != nil {
		return fetched{}, fmt.Errorf("list memberships: %w", err)
	}

	var sharedIDs []string
	if familyIDs := membershipFamilyIDs(memberships); len(familyIDs) > 0 {
		sharedIDs, err = s.links.EventIDsForFamilies(ctx, familyIDs)
		if err != nil {
			return fetched{}, fmt.Errorf("list shared events: %w", err)
		}
	}

	rows, err = s.events.ListByCreatorOrIDs(ctx, userID, sharedIDs)
	if err != nil {
		return fetched{}, fmt.Errorf("list accessible events: %w", err)
	}
	return fetched{rows: rows, strategy: StrategyCombined}, nil
}

// mapRecords resolves creator names with one batched profile lookup and maps every row
func (s *EventService) mapRecords(ctx context.Context, rows []models.EventRecord) []models.Event {
	lookup := s.profileLookup(ctx, mapper.CreatorIDs(rows))
	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, mapper.FromWireEvent(row, lookup))
	}
	return events
}

func membershipFamilyIDs(memberships []models.FamilyMember) []string {
	seen := make(map[string]struct{}, len(memberships))
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		if _, ok := seen[m.FamilyID]; ok || m.FamilyID == "" {
			continue
		}
		seen[m.FamilyID] = struct{}{}
		ids = append(ids, m.FamilyID)
	}
	return ids
}

func failedFetch(msg string) FetchResult {
	return FetchResult{Events: []models.Event{}, Error: &msg}
}
