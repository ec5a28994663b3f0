package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"family-calendar-backend/internal/models"
	"family-calendar-backend/internal/repository"
	"family-calendar-backend/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("connection reset by peer")

// memGateway is an in-memory stand-in for every store the services use
type memGateway struct {
	mu sync.Mutex

	events      map[string]models.EventRecord
	eventOrder  []string
	links       map[string]map[string]string // event id -> family id -> shared by
	families    map[string]models.Family
	members     []models.FamilyMember
	invitations map[string]models.Invitation // family id + "|" + email
	profiles    map[string]models.UserProfile

	writes       int
	createCalls  int
	profileCalls int
	profileIDs   [][]string

	rpcUnavailable bool
	rpcErr         error
	// listByUserFailures fails that many ListByUser calls; -1 fails every call
	listByUserFailures int
	listByUserCalls    int
	creatorListErr     error
	insertErr          error
	linkInsertErr      error
	linkDeleteErr      error
	profileErr         error
	inviteErr          error
	createErr          error
	// createConflict simulates a concurrent creator: the family is stored but
	// the call reports a unique violation
	createConflict bool
	insertPanics   bool
}

func newMemGateway() *memGateway {
	return &memGateway{
		events:      map[string]models.EventRecord{},
		links:       map[string]map[string]string{},
		families:    map[string]models.Family{},
		invitations: map[string]models.Invitation{},
		profiles:    map[string]models.UserProfile{},
	}
}

// seeding helpers

func (g *memGateway) addFamily(name, createdBy string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addFamilyLocked(name, "#000000", createdBy)
}

func (g *memGateway) addFamilyLocked(name, color, createdBy string) string {
	id := uuid.NewString()
	g.families[id] = models.Family{ID: id, Name: name, Color: color, CreatedBy: createdBy, CreatedAt: time.Now()}
	g.members = append(g.members, models.FamilyMember{
		ID: uuid.NewString(), FamilyID: id, UserID: createdBy, Role: models.RoleAdmin, JoinedAt: time.Now(),
	})
	return id
}

// addMember adds userID to familyID and returns the membership id
func (g *memGateway) addMember(familyID, userID string, role models.Role) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uuid.NewString()
	g.members = append(g.members, models.FamilyMember{
		ID: id, FamilyID: familyID, UserID: userID, Role: role, JoinedAt: time.Now(),
	})
	return id
}

func (g *memGateway) addProfile(id, fullName, email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[id] = models.UserProfile{ID: id, FullName: fullName, Email: email}
}

func (g *memGateway) seedEvent(name, creatorID string, familyIDs ...string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uuid.NewString()
	g.events[id] = models.EventRecord{
		ID: id, Name: name, Date: "2024-04-15T00:00:00Z", EndDate: "2024-04-15T00:00:00Z",
		CreatorID: creatorID, CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	g.eventOrder = append(g.eventOrder, id)
	for _, f := range familyIDs {
		if g.links[id] == nil {
			g.links[id] = map[string]string{}
		}
		g.links[id][f] = creatorID
	}
	return id
}

// inspection helpers

func (g *memGateway) writeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes
}

func (g *memGateway) event(id string) (models.EventRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.events[id]
	return rec, ok
}

func (g *memGateway) linkCount(eventID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.links[eventID])
}

func (g *memGateway) familiesNamed(name, createdBy string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, f := range g.families {
		if f.Name == name && f.CreatedBy == createdBy {
			n++
		}
	}
	return n
}

func (g *memGateway) invitationList() []models.Invitation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.Invitation, 0, len(g.invitations))
	for _, inv := range g.invitations {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// EventStore

func (g *memGateway) Insert(_ context.Context, rec *models.EventRecord) (*models.EventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.insertPanics {
		panic("insert exploded")
	}
	if g.insertErr != nil {
		return nil, g.insertErr
	}
	g.writes++
	row := *rec
	row.ID = uuid.NewString()
	row.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	g.events[row.ID] = row
	g.eventOrder = append(g.eventOrder, row.ID)
	return &row, nil
}

func (g *memGateway) Update(_ context.Context, id string, rec *models.EventRecord) (*models.EventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing, ok := g.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	g.writes++
	row := *rec
	row.ID = id
	row.CreatedAt = existing.CreatedAt
	g.events[id] = row
	return &row, nil
}

func (g *memGateway) GetByID(_ context.Context, id string) (*models.EventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (g *memGateway) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.events[id]; !ok {
		return repository.ErrNotFound
	}
	g.writes++
	delete(g.events, id)
	return nil
}

func (g *memGateway) ListByCreator(_ context.Context, userID string) ([]models.EventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.creatorListErr != nil {
		return nil, g.creatorListErr
	}
	return g.collect(func(rec models.EventRecord) bool { return rec.CreatorID == userID }), nil
}

func (g *memGateway) ListByCreatorOrIDs(_ context.Context, userID string, ids []string) ([]models.EventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return g.collect(func(rec models.EventRecord) bool {
		_, shared := want[rec.ID]
		return rec.CreatorID == userID || shared
	}), nil
}

func (g *memGateway) collect(keep func(models.EventRecord) bool) []models.EventRecord {
	var out []models.EventRecord
	for _, id := range g.eventOrder {
		rec, ok := g.events[id]
		if ok && keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// EventFamilyStore

func (g *memGateway) InsertForEvent(_ context.Context, eventID string, familyIDs []string, sharedBy string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.linkInsertErr != nil {
		return 0, g.linkInsertErr
	}
	g.writes++
	if g.links[eventID] == nil {
		g.links[eventID] = map[string]string{}
	}
	var inserted int64
	for _, f := range familyIDs {
		if _, ok := g.links[eventID][f]; ok {
			continue
		}
		g.links[eventID][f] = sharedBy
		inserted++
	}
	return inserted, nil
}

func (g *memGateway) DeleteByEvent(_ context.Context, eventID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.linkDeleteErr != nil {
		return 0, g.linkDeleteErr
	}
	g.writes++
	n := int64(len(g.links[eventID]))
	delete(g.links, eventID)
	return n, nil
}

func (g *memGateway) EventIDsForFamilies(_ context.Context, familyIDs []string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for _, eventID := range g.eventOrder {
		for _, f := range familyIDs {
			if _, ok := g.links[eventID][f]; ok {
				ids = append(ids, eventID)
				break
			}
		}
	}
	return ids, nil
}

func (g *memGateway) FamilyIDsForEvent(_ context.Context, eventID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.links[eventID]))
	for f := range g.links[eventID] {
		ids = append(ids, f)
	}
	sort.Strings(ids)
	return ids, nil
}

// FamilyStore

func (g *memGateway) FindByNameAndCreator(_ context.Context, name, createdBy string) (*models.Family, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range g.families {
		if f.Name == name && f.CreatedBy == createdBy {
			return &f, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (g *memGateway) ListByMember(_ context.Context, userID string) ([]models.Family, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.Family
	for _, m := range g.members {
		if m.UserID == userID {
			out = append(out, g.families[m.FamilyID])
		}
	}
	return out, nil
}

// MemberStore

func (g *memGateway) ListByUser(_ context.Context, userID string) ([]models.FamilyMember, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listByUserCalls++
	if g.listByUserFailures != 0 {
		if g.listByUserFailures > 0 {
			g.listByUserFailures--
		}
		return nil, errBoom
	}
	var out []models.FamilyMember
	for _, m := range g.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g *memGateway) ListByFamily(_ context.Context, familyID string) ([]models.FamilyMember, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.FamilyMember
	for _, m := range g.members {
		if m.FamilyID == familyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g *memGateway) GetMembership(_ context.Context, familyID, userID string) (*models.FamilyMember, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members {
		if m.FamilyID == familyID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (g *memGateway) ResolveFamilyIDs(_ context.Context, ids []string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resolved := map[string]string{}
	for _, id := range ids {
		if _, ok := g.families[id]; ok {
			resolved[id] = id
			continue
		}
		for _, m := range g.members {
			if m.ID == id {
				resolved[id] = m.FamilyID
				break
			}
		}
	}
	return resolved, nil
}

// InvitationStore

func (g *memGateway) UpsertMany(_ context.Context, invitations []models.Invitation) ([]models.Invitation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inviteErr != nil {
		return nil, g.inviteErr
	}
	g.writes++
	out := make([]models.Invitation, 0, len(invitations))
	for _, inv := range invitations {
		key := inv.FamilyID + "|" + inv.Email
		if existing, ok := g.invitations[key]; ok {
			existing.LastInvited = time.Now()
			g.invitations[key] = existing
			out = append(out, existing)
			continue
		}
		inv.ID = uuid.NewString()
		inv.InvitedAt = time.Now()
		inv.LastInvited = inv.InvitedAt
		g.invitations[key] = inv
		out = append(out, inv)
	}
	return out, nil
}

func (g *memGateway) TouchLastInvited(_ context.Context, familyID, email string) (*models.Invitation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := familyID + "|" + email
	inv, ok := g.invitations[key]
	if !ok || inv.Status != models.InvitationPending {
		return nil, repository.ErrNotFound
	}
	g.writes++
	inv.LastInvited = time.Now()
	g.invitations[key] = inv
	return &inv, nil
}

// ProfileStore

func (g *memGateway) GetByIDs(_ context.Context, ids []string) ([]models.UserProfile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profileCalls++
	g.profileIDs = append(g.profileIDs, ids)
	if g.profileErr != nil {
		return nil, g.profileErr
	}
	var out []models.UserProfile
	for _, id := range ids {
		if p, ok := g.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FunctionCaller

func (g *memGateway) rpcError() error {
	if g.rpcUnavailable {
		return repository.ErrFunctionUnavailable
	}
	return g.rpcErr
}

func (g *memGateway) AccessibleEvents(_ context.Context, userID string) ([]models.EventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rpcError(); err != nil {
		return nil, err
	}
	return g.collect(func(rec models.EventRecord) bool { return g.canSee(rec, userID) }), nil
}

func (g *memGateway) UserFamilies(_ context.Context, userID string) ([]models.Family, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rpcError(); err != nil {
		return nil, err
	}
	var out []models.Family
	for _, m := range g.members {
		if m.UserID == userID {
			out = append(out, g.families[m.FamilyID])
		}
	}
	return out, nil
}

func (g *memGateway) CreateFamilySafely(_ context.Context, name, color, userID string) (*models.Family, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	for _, f := range g.families {
		if f.Name == name && f.CreatedBy == userID {
			return nil, repository.ErrUniqueViolation
		}
	}
	g.writes++
	id := g.addFamilyLocked(name, color, userID)
	if g.createConflict {
		return nil, repository.ErrUniqueViolation
	}
	f := g.families[id]
	return &f, nil
}

func (g *memGateway) CheckEventAccess(_ context.Context, eventID, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rpcError(); err != nil {
		return false, err
	}
	rec, ok := g.events[eventID]
	if !ok {
		return false, nil
	}
	return g.canSee(rec, userID), nil
}

func (g *memGateway) canSee(rec models.EventRecord, userID string) bool {
	if rec.CreatorID == userID {
		return true
	}
	for familyID := range g.links[rec.ID] {
		for _, m := range g.members {
			if m.FamilyID == familyID && m.UserID == userID {
				return true
			}
		}
	}
	return false
}

// recordingNotifier captures broadcasts
type recordingNotifier struct {
	mu       sync.Mutex
	messages []WSMessage
	audience [][]string
}

func (n *recordingNotifier) Broadcast(userIDs []string, message WSMessage) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	n.audience = append(n.audience, append([]string(nil), userIDs...))
	return len(userIDs)
}

// test helpers

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func newTestEventService(g *memGateway, notifier Notifier) *EventService {
	return NewEventService(g, g, g, g, g, notifier, nil, testRetryPolicy())
}

func withUser(userID, email string) context.Context {
	return session.NewContext(context.Background(), &session.Session{
		UserID:    userID,
		Email:     email,
		ExpiresAt: time.Now().Add(time.Hour),
	})
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func eventNames(events []models.Event) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
