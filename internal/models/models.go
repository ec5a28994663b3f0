package models

import "time"

// Role is a family member's role
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleChild  Role = "child"
)

// Invitation statuses
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
)

// Event represents a calendar event shared within families
type Event struct {
	ID           string     `json:"id,omitempty"`
	Name         string     `json:"name" validate:"notblank,max=200"`
	Date         time.Time  `json:"date" validate:"required"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Time         string     `json:"time" validate:"max=32"`
	Description  string     `json:"description"`
	AllDay       bool       `json:"all_day"`
	CreatorID    string     `json:"creatorId,omitempty"`
	FamilyMember string     `json:"familyMember,omitempty"`
	// FamilyIDs lists families the event is shared with. On input the ids may
	// be family member ids; they are resolved to family ids before linking.
	// A nil slice on update leaves existing links untouched.
	FamilyIDs []string `json:"family_ids,omitempty"`
}

// EventRecord is the row shape of the events table. Timestamps are carried as
// canonical RFC 3339 strings.
type EventRecord struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	EndDate     string `json:"end_date"`
	Time        string `json:"time"`
	Description string `json:"description"`
	AllDay      bool   `json:"all_day"`
	CreatorID   string `json:"creator_id"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// EventFamily links an event to a family
type EventFamily struct {
	EventID  string `json:"event_id"`
	FamilyID string `json:"family_id"`
	SharedBy string `json:"shared_by"`
}

// Family represents a family group
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// FamilyMember represents a user's membership in a family
type FamilyMember struct {
	ID       string    `json:"id"`
	FamilyID string    `json:"family_id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Invitation represents a pending invitation to join a family
type Invitation struct {
	ID          string    `json:"id"`
	FamilyID    string    `json:"family_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	InvitedBy   string    `json:"invited_by"`
	Status      string    `json:"status"`
	InvitedAt   time.Time `json:"invited_at"`
	LastInvited time.Time `json:"last_invited"`
}

// UserProfile holds the display fields of a user
type UserProfile struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}
