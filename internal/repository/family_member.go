package repository

import (
	"context"
	"fmt"

	"family-calendar-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const memberColumns = `id::text, family_id::text, user_id::text, COALESCE(email, ''), COALESCE(name, ''), role, joined_at`

// FamilyMemberRepository handles database operations for family memberships
type FamilyMemberRepository struct {
	db *pgxpool.Pool
}

// NewFamilyMemberRepository creates a new family member repository
func NewFamilyMemberRepository(db *pgxpool.Pool) *FamilyMemberRepository {
	return &FamilyMemberRepository{db: db}
}

// ListByUser retrieves the memberships of a user
func (r *FamilyMemberRepository) ListByUser(ctx context.Context, userID string) ([]models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM ` + string(TableFamilyMembers) + ` WHERE user_id::text = $1`
	return r.list(ctx, "list memberships", query, userID)
}

// ListByFamily retrieves the members of a family
func (r *FamilyMemberRepository) ListByFamily(ctx context.Context, familyID string) ([]models.FamilyMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM ` + string(TableFamilyMembers) + `
		WHERE family_id::text = $1
		ORDER BY joined_at ASC
	`
	return r.list(ctx, "list family members", query, familyID)
}

// GetMembership retrieves a user's membership in a family
func (r *FamilyMemberRepository) GetMembership(ctx context.Context, familyID, userID string) (*models.FamilyMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM ` + string(TableFamilyMembers) + `
		WHERE family_id::text = $1 AND user_id::text = $2
	`
	member, err := scanMember(r.db.QueryRow(ctx, query, familyID, userID))
	if err != nil {
		return nil, classify(err, "get membership")
	}
	return member, nil
}

// ResolveFamilyIDs maps each id to the family it designates. An id may be a
// family member id or a family id; ids that match neither are absent from
// the result.
func (r *FamilyMemberRepository) ResolveFamilyIDs(ctx context.Context, ids []string) (map[string]string, error) {
	resolved := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return resolved, nil
	}
	query := `
		SELECT fm.id::text, fm.family_id::text
		FROM ` + string(TableFamilyMembers) + ` fm
		WHERE fm.id::text = ANY($1::text[])
		UNION ALL
		SELECT f.id::text, f.id::text
		FROM ` + string(TableFamilies) + ` f
		WHERE f.id::text = ANY($1::text[])
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, classify(err, "resolve family ids")
	}
	defer rows.Close()

	for rows.Next() {
		var id, familyID string
		if err := rows.Scan(&id, &familyID); err != nil {
			return nil, fmt.Errorf("resolve family ids: %w", err)
		}
		resolved[id] = familyID
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "resolve family ids")
	}
	return resolved, nil
}

func (r *FamilyMemberRepository) list(ctx context.Context, op, query string, args ...any) ([]models.FamilyMember, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	var members []models.FamilyMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan member: %w", op, err)
		}
		members = append(members, *member)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, op)
	}
	return members, nil
}

func scanMember(row pgx.Row) (*models.FamilyMember, error) {
	var (
		member models.FamilyMember
		role   string
	)
	if err := row.Scan(
		&member.ID, &member.FamilyID, &member.UserID, &member.Email, &member.Name, &role, &member.JoinedAt,
	); err != nil {
		return nil, err
	}
	member.Role = models.Role(role)
	return &member, nil
}
