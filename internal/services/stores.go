package services

import (
	"context"

	"family-calendar-backend/internal/models"
)

// EventStore is the events table as the services use it
type EventStore interface {
	Insert(ctx context.Context, rec *models.EventRecord) (*models.EventRecord, error)
	Update(ctx context.Context, id string, rec *models.EventRecord) (*models.EventRecord, error)
	GetByID(ctx context.Context, id string) (*models.EventRecord, error)
	Delete(ctx context.Context, id string) error
	ListByCreator(ctx context.Context, userID string) ([]models.EventRecord, error)
	ListByCreatorOrIDs(ctx context.Context, userID string, ids []string) ([]models.EventRecord, error)
}

// EventFamilyStore is the event_families join table
type EventFamilyStore interface {
	InsertForEvent(ctx context.Context, eventID string, familyIDs []string, sharedBy string) (int64, error)
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
	EventIDsForFamilies(ctx context.Context, familyIDs []string) ([]string, error)
	FamilyIDsForEvent(ctx context.Context, eventID string) ([]string, error)
}

// FamilyStore is the families table
type FamilyStore interface {
	FindByNameAndCreator(ctx context.Context, name, createdBy string) (*models.Family, error)
	ListByMember(ctx context.Context, userID string) ([]models.Family, error)
}

// MemberStore is the family_members table
type MemberStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.FamilyMember, error)
	ListByFamily(ctx context.Context, familyID string) ([]models.FamilyMember, error)
	GetMembership(ctx context.Context, familyID, userID string) (*models.FamilyMember, error)
	ResolveFamilyIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// InvitationStore is the invitations table
type InvitationStore interface {
	UpsertMany(ctx context.Context, invitations []models.Invitation) ([]models.Invitation, error)
	TouchLastInvited(ctx context.Context, familyID, email string) (*models.Invitation, error)
}

// ProfileStore is the profiles table
type ProfileStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.UserProfile, error)
}

// FunctionCaller invokes the privileged server-side functions
type FunctionCaller interface {
	AccessibleEvents(ctx context.Context, userID string) ([]models.EventRecord, error)
	UserFamilies(ctx context.Context, userID string) ([]models.Family, error)
	CreateFamilySafely(ctx context.Context, name, color, userID string) (*models.Family, error)
	CheckEventAccess(ctx context.Context, eventID, userID string) (bool, error)
}
