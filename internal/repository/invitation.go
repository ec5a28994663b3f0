package repository

import (
	"context"
	"fmt"

	"family-calendar-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationColumns = `id::text, family_id::text, email, COALESCE(name, ''), role, invited_by::text, status, invited_at, last_invited`

// InvitationRepository handles database operations for invitations
type InvitationRepository struct {
	db *pgxpool.Pool
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *pgxpool.Pool) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// UpsertMany writes the invitations in one batch. An invitation that already
// exists for (family_id, email) has its last_invited timestamp bumped instead
// of being duplicated.
func (r *InvitationRepository) UpsertMany(ctx context.Context, invitations []models.Invitation) ([]models.Invitation, error) {
	if len(invitations) == 0 {
		return nil, nil
	}
	query := `
		INSERT INTO ` + string(TableInvitations) + ` (family_id, email, name, role, invited_by, status, invited_at, last_invited)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (family_id, email) DO UPDATE
		SET last_invited = now(), name = EXCLUDED.name, role = EXCLUDED.role
		RETURNING ` + invitationColumns

	batch := &pgx.Batch{}
	for _, inv := range invitations {
		batch.Queue(query, inv.FamilyID, inv.Email, inv.Name, string(inv.Role), inv.InvitedBy, inv.Status)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	stored := make([]models.Invitation, 0, len(invitations))
	for range invitations {
		inv, err := scanInvitation(results.QueryRow())
		if err != nil {
			return stored, classify(err, "upsert invitation")
		}
		stored = append(stored, *inv)
	}
	return stored, nil
}

// TouchLastInvited bumps the last_invited timestamp of a pending invitation
func (r *InvitationRepository) TouchLastInvited(ctx context.Context, familyID, email string) (*models.Invitation, error) {
	query := `
		UPDATE ` + string(TableInvitations) + `
		SET last_invited = now()
		WHERE family_id::text = $1 AND email = $2 AND status = $3
		RETURNING ` + invitationColumns
	inv, err := scanInvitation(r.db.QueryRow(ctx, query, familyID, email, models.InvitationPending))
	if err != nil {
		return nil, classify(err, "resend invitation")
	}
	return inv, nil
}

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var (
		inv  models.Invitation
		role string
	)
	if err := row.Scan(
		&inv.ID, &inv.FamilyID, &inv.Email, &inv.Name, &role, &inv.InvitedBy,
		&inv.Status, &inv.InvitedAt, &inv.LastInvited,
	); err != nil {
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	inv.Role = models.Role(role)
	return &inv, nil
}
