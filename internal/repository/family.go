package repository

import (
	"context"
	"fmt"

	"family-calendar-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const familyColumns = `id::text, name, color, created_by::text, created_at`

// FamilyRepository handles database operations for families
type FamilyRepository struct {
	db *pgxpool.Pool
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *pgxpool.Pool) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// FindByNameAndCreator retrieves the most recent family a user created with the given name
func (r *FamilyRepository) FindByNameAndCreator(ctx context.Context, name, createdBy string) (*models.Family, error) {
	query := `
		SELECT ` + familyColumns + `
		FROM ` + string(TableFamilies) + `
		WHERE name = $1 AND created_by::text = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	family, err := scanFamily(r.db.QueryRow(ctx, query, name, createdBy))
	if err != nil {
		return nil, classify(err, "find family")
	}
	return family, nil
}

// ListByMember retrieves every family a user belongs to
func (r *FamilyRepository) ListByMember(ctx context.Context, userID string) ([]models.Family, error) {
	query := `
		SELECT f.id::text, f.name, f.color, f.created_by::text, f.created_at
		FROM ` + string(TableFamilies) + ` f
		INNER JOIN ` + string(TableFamilyMembers) + ` fm ON fm.family_id = f.id
		WHERE fm.user_id::text = $1
		ORDER BY f.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(err, "list families")
	}
	return collectFamilies(rows, "list families")
}

func collectFamilies(rows pgx.Rows, op string) ([]models.Family, error) {
	defer rows.Close()

	var families []models.Family
	for rows.Next() {
		family, err := scanFamily(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan family: %w", op, err)
		}
		families = append(families, *family)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, op)
	}
	return families, nil
}

func scanFamily(row pgx.Row) (*models.Family, error) {
	var (
		family models.Family
		color  *string
	)
	if err := row.Scan(&family.ID, &family.Name, &color, &family.CreatedBy, &family.CreatedAt); err != nil {
		return nil, err
	}
	if color != nil {
		family.Color = *color
	}
	return &family, nil
}
