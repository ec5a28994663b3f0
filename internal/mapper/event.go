// Package mapper converts between event rows and domain events.
package mapper

import (
	"strings"
	"time"

	"family-calendar-backend/internal/models"
)

// TimestampLayout is the canonical timestamp format of event rows
const TimestampLayout = time.RFC3339

const (
	unknownDisplayName = "Unknown"
	creatorIDPrefixLen = 8
)

var parseLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05-07", "2006-01-02"}

// FormatTimestamp serializes t in UTC using TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a row timestamp. Unparseable input yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ToWireEvent maps a domain event to an events row. The creator is always the
// given user id; whatever the client put in CreatorID is ignored.
func ToWireEvent(event models.Event, userID string) models.EventRecord {
	endDate := event.Date
	if event.EndDate != nil && !event.EndDate.IsZero() {
		endDate = *event.EndDate
	}
	return models.EventRecord{
		ID:          event.ID,
		Name:        strings.TrimSpace(event.Name),
		Date:        FormatTimestamp(event.Date),
		EndDate:     FormatTimestamp(endDate),
		Time:        event.Time,
		Description: event.Description,
		AllDay:      event.AllDay,
		CreatorID:   userID,
	}
}

// FromWireEvent maps an events row to a domain event, resolving the creator's
// display name through profiles.
func FromWireEvent(record models.EventRecord, profiles map[string]models.UserProfile) models.Event {
	date := ParseTimestamp(record.Date)
	endDate := date
	if record.EndDate != "" {
		endDate = ParseTimestamp(record.EndDate)
	}
	return models.Event{
		ID:           record.ID,
		Name:         record.Name,
		Date:         date,
		EndDate:      &endDate,
		Time:         record.Time,
		Description:  record.Description,
		AllDay:       record.AllDay,
		CreatorID:    record.CreatorID,
		FamilyMember: DisplayName(record.CreatorID, profiles),
	}
}

// DisplayName resolves a creator's display name: full name, then email, then
// the first 8 characters of the id, then "Unknown".
func DisplayName(creatorID string, profiles map[string]models.UserProfile) string {
	if p, ok := profiles[creatorID]; ok {
		if name := strings.TrimSpace(p.FullName); name != "" {
			return name
		}
		if email := strings.TrimSpace(p.Email); email != "" {
			return email
		}
	}
	if creatorID == "" {
		return unknownDisplayName
	}
	if len(creatorID) > creatorIDPrefixLen {
		return creatorID[:creatorIDPrefixLen]
	}
	return creatorID
}

// ProfileLookup indexes profiles by user id
func ProfileLookup(profiles []models.UserProfile) map[string]models.UserProfile {
	lookup := make(map[string]models.UserProfile, len(profiles))
	for _, p := range profiles {
		lookup[p.ID] = p
	}
	return lookup
}

// CreatorIDs returns the distinct non-empty creator ids of records in first-seen order
func CreatorIDs(records []models.EventRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var ids []string
	for _, r := range records {
		if r.CreatorID == "" {
			continue
		}
		if _, ok := seen[r.CreatorID]; ok {
			continue
		}
		seen[r.CreatorID] = struct{}{}
		ids = append(ids, r.CreatorID)
	}
	return ids
}
