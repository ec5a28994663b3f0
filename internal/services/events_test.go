package services

import (
	"context"
	"testing"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_DinnerWithoutFamilies(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()

	result, err := svc.Create(withUser(u1, "u1@example.com"), models.Event{
		Name:      "Dinner",
		Date:      mustDate(t, "2024-04-15"),
		Time:      "18:00",
		CreatorID: "someone-else",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Event)

	assert.Equal(t, u1, result.Event.CreatorID)
	assert.Equal(t, u1[:8], result.Event.FamilyMember)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Event.FamilyIDs)

	stored, ok := g.event(result.Event.ID)
	require.True(t, ok)
	assert.Equal(t, u1, stored.CreatorID)
	assert.Equal(t, 0, g.linkCount(result.Event.ID))
	assert.Equal(t, 1, g.writeCount())
}

func TestCreate_ResolvesDisplayNameFromProfile(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	g.addProfile(u1, "Ana Smith", "ana@example.com")

	result, err := svc.Create(withUser(u1, "ana@example.com"), models.Event{
		Name: "  Dinner  ",
		Date: mustDate(t, "2024-04-15"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Dinner", result.Event.Name)
	assert.Equal(t, "Ana Smith", result.Event.FamilyMember)
	require.NotNil(t, result.Event.EndDate)
	assert.True(t, result.Event.EndDate.Equal(result.Event.Date))
}

func TestCreate_RoundTripsThroughFetch(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	ctx := withUser(u1, "u1@example.com")

	input := models.Event{
		Name:        "Swim practice",
		Date:        mustDate(t, "2024-06-03"),
		Time:        "07:30",
		Description: "Bring goggles",
		AllDay:      false,
	}
	created, err := svc.Create(ctx, input)
	require.NoError(t, err)

	fetched := svc.Fetch(ctx)
	require.Nil(t, fetched.Error)
	require.Len(t, fetched.Events, 1)

	got := fetched.Events[0]
	assert.Equal(t, created.Event.ID, got.ID)
	assert.Equal(t, input.Name, got.Name)
	assert.Equal(t, input.Time, got.Time)
	assert.Equal(t, input.Description, got.Description)
	assert.Equal(t, input.AllDay, got.AllDay)
	assert.True(t, input.Date.Equal(got.Date))
	assert.Equal(t, u1, got.CreatorID)
}

func TestCreate_RequiresSession(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)

	_, err := svc.Create(context.Background(), models.Event{Name: "Dinner", Date: mustDate(t, "2024-04-15")})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthenticated))
	assert.Equal(t, 0, g.writeCount())
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
	}{
		{name: "blank name", event: models.Event{Name: "   ", Date: mustDate(t, "2024-04-15")}},
		{name: "missing date", event: models.Event{Name: "Dinner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newMemGateway()
			svc := newTestEventService(g, nil)

			_, err := svc.Create(withUser(uuid.NewString(), ""), tt.event)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
			assert.Equal(t, 0, g.writeCount())
		})
	}
}

func TestCreate_SharesWithEachFamilyOnce(t *testing.T) {
	g := newMemGateway()
	notifier := &recordingNotifier{}
	svc := newTestEventService(g, notifier)
	u1, u2 := uuid.NewString(), uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	m2 := g.addMember(f1, u2, models.RoleMember)

	// a family id and a member id of the same family
	result, err := svc.Create(withUser(u1, ""), models.Event{
		Name:      "Picnic",
		Date:      mustDate(t, "2024-07-04"),
		FamilyIDs: []string{f1, m2},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Warnings)
	assert.Equal(t, []string{f1}, result.Event.FamilyIDs)
	assert.Equal(t, 1, g.linkCount(result.Event.ID))

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "event_created", notifier.messages[0].Type)
	assert.Equal(t, result.Event.ID, notifier.messages[0].EventID)
	assert.Equal(t, []string{u2}, notifier.audience[0])
}

func TestCreate_UnknownFamilyBecomesWarning(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	outsider := g.addFamily("Joneses", uuid.NewString())

	result, err := svc.Create(withUser(u1, ""), models.Event{
		Name:      "Picnic",
		Date:      mustDate(t, "2024-07-04"),
		FamilyIDs: []string{f1, uuid.NewString(), outsider},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, g.linkCount(result.Event.ID))
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "Sharing with families failed: 2 of the selected families could not be found", result.Warnings[0])
}

func TestCreate_LinkFailureKeepsEvent(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	g.linkInsertErr = errBoom

	result, err := svc.Create(withUser(u1, ""), models.Event{
		Name:      "Picnic",
		Date:      mustDate(t, "2024-07-04"),
		FamilyIDs: []string{f1},
	})
	require.NoError(t, err)

	_, ok := g.event(result.Event.ID)
	assert.True(t, ok)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Sharing with families failed")
	assert.NotContains(t, result.Warnings[0], errBoom.Error())
}

func TestCreate_InsertFailureIsPersistenceError(t *testing.T) {
	g := newMemGateway()
	g.insertErr = errBoom
	svc := newTestEventService(g, nil)

	_, err := svc.Create(withUser(uuid.NewString(), ""), models.Event{Name: "Dinner", Date: mustDate(t, "2024-04-15")})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistence))
}

func TestCreate_PanicBecomesInternalError(t *testing.T) {
	g := newMemGateway()
	g.insertPanics = true
	svc := newTestEventService(g, nil)

	result, err := svc.Create(withUser(uuid.NewString(), ""), models.Event{Name: "Dinner", Date: mustDate(t, "2024-04-15")})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
}

func TestUpdate_ReplacesFamilyLinks(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	f2 := g.addFamily("Cousins", u1)
	eventID := g.seedEvent("Dinner", u1, f1)

	result, err := svc.Update(withUser(u1, ""), eventID, models.Event{
		Name:      "Late dinner",
		Date:      mustDate(t, "2024-04-16"),
		FamilyIDs: []string{f2},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Warnings)
	assert.Equal(t, "Late dinner", result.Event.Name)
	assert.Equal(t, []string{f2}, result.Event.FamilyIDs)
	linked, err := g.FamilyIDsForEvent(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, []string{f2}, linked)
}

func TestUpdate_LinkCleanupFailureStillShares(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	f2 := g.addFamily("Cousins", u1)
	eventID := g.seedEvent("Dinner", u1, f1)
	g.linkDeleteErr = errBoom

	result, err := svc.Update(withUser(u1, ""), eventID, models.Event{
		Name:      "Dinner",
		Date:      mustDate(t, "2024-04-15"),
		FamilyIDs: []string{f2},
	})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Removing previous family sharing failed")
	assert.Equal(t, []string{f2}, result.Event.FamilyIDs)
	linked, err := g.FamilyIDsForEvent(context.Background(), eventID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f1, f2}, linked)
}

func TestUpdate_LinkFailureKeepsUpdate(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	eventID := g.seedEvent("Dinner", u1, f1)
	g.linkInsertErr = errBoom

	result, err := svc.Update(withUser(u1, ""), eventID, models.Event{
		Name:      "Late dinner",
		Date:      mustDate(t, "2024-04-16"),
		FamilyIDs: []string{f1},
	})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Sharing with families failed")
	assert.NotContains(t, result.Warnings[0], errBoom.Error())
	stored, ok := g.event(eventID)
	require.True(t, ok)
	assert.Equal(t, "Late dinner", stored.Name)
	assert.Equal(t, "Late dinner", result.Event.Name)
	assert.Equal(t, 0, g.linkCount(eventID))
}

func TestUpdate_NilFamilyIDsKeepsLinks(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	eventID := g.seedEvent("Dinner", u1, f1)

	_, err := svc.Update(withUser(u1, ""), eventID, models.Event{Name: "Dinner", Date: mustDate(t, "2024-04-15")})
	require.NoError(t, err)
	assert.Equal(t, 1, g.linkCount(eventID))
}

func TestUpdate_KeepsOriginalCreator(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	eventID := g.seedEvent("Dinner", u1)

	_, err := svc.Update(withUser(u1, ""), eventID, models.Event{
		Name:      "Dinner",
		Date:      mustDate(t, "2024-04-15"),
		CreatorID: uuid.NewString(),
	})
	require.NoError(t, err)

	stored, _ := g.event(eventID)
	assert.Equal(t, u1, stored.CreatorID)
}

func TestUpdate_OwnershipGate(t *testing.T) {
	u1, u2 := uuid.NewString(), uuid.NewString()

	tests := []struct {
		name           string
		rpcUnavailable bool
		shared         bool
	}{
		{name: "family member with read access", shared: true},
		{name: "unrelated user"},
		{name: "access function unavailable", rpcUnavailable: true, shared: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newMemGateway()
			g.rpcUnavailable = tt.rpcUnavailable
			svc := newTestEventService(g, nil)
			var families []string
			if tt.shared {
				f1 := g.addFamily("Smiths", u1)
				g.addMember(f1, u2, models.RoleMember)
				families = append(families, f1)
			}
			eventID := g.seedEvent("Dinner", u1, families...)

			_, err := svc.Update(withUser(u2, ""), eventID, models.Event{Name: "Hijacked", Date: mustDate(t, "2024-04-15")})
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
			assert.Equal(t, 0, g.writeCount())

			stored, _ := g.event(eventID)
			assert.Equal(t, "Dinner", stored.Name)
		})
	}
}

func TestUpdate_MissingEvent(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	ctx := withUser(uuid.NewString(), "")

	_, err := svc.Update(ctx, uuid.NewString(), models.Event{Name: "Dinner", Date: mustDate(t, "2024-04-15")})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = svc.Update(ctx, "not-an-id", models.Event{Name: "Dinner", Date: mustDate(t, "2024-04-15")})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestDelete_RemovesEventAndLinks(t *testing.T) {
	g := newMemGateway()
	notifier := &recordingNotifier{}
	svc := newTestEventService(g, notifier)
	u1, u2 := uuid.NewString(), uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	g.addMember(f1, u2, models.RoleChild)
	eventID := g.seedEvent("Dinner", u1, f1)

	result, err := svc.Delete(withUser(u1, ""), eventID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, eventID, result.EventID)
	assert.Equal(t, "Dinner", result.EventName)
	assert.Equal(t, `"Dinner" has been deleted`, result.Message)
	_, ok := g.event(eventID)
	assert.False(t, ok)
	assert.Equal(t, 0, g.linkCount(eventID))

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "event_deleted", notifier.messages[0].Type)
	assert.Equal(t, []string{f1}, notifier.messages[0].FamilyIDs)
	assert.Equal(t, []string{u2}, notifier.audience[0])
}

func TestDelete_NonOwnedEventIsKept(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1, u2 := uuid.NewString(), uuid.NewString()
	f1 := g.addFamily("Smiths", u1)
	g.addMember(f1, u2, models.RoleMember)
	eventID := g.seedEvent("Dinner", u1, f1)

	result, err := svc.Delete(withUser(u2, ""), eventID)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	assert.Equal(t, "only the creator can delete this event", apperrors.Message(err))

	_, ok := g.event(eventID)
	assert.True(t, ok)
	assert.Equal(t, 1, g.linkCount(eventID))
	assert.Equal(t, 0, g.writeCount())
}

func TestDelete_LinkCleanupFailureStillDeletes(t *testing.T) {
	g := newMemGateway()
	svc := newTestEventService(g, nil)
	u1 := uuid.NewString()
	eventID := g.seedEvent("Dinner", u1)
	g.linkDeleteErr = errBoom

	result, err := svc.Delete(withUser(u1, ""), eventID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, ok := g.event(eventID)
	assert.False(t, ok)
}

func TestUniqueFamilyIDs(t *testing.T) {
	resolved := map[string]string{"f1": "f1", "m1": "f1", "m2": "f2", "m3": "f3"}
	allowed := map[string]struct{}{"f1": {}, "f2": {}}

	ids, skipped := uniqueFamilyIDs([]string{"m1", "f1", "m2", "m3", "missing"}, resolved, allowed)

	assert.Equal(t, []string{"f1", "f2"}, ids)
	assert.Equal(t, 2, skipped)
}
