package repository

import (
	"context"
	"fmt"

	"family-calendar-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository reads user profiles
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByIDs retrieves the profiles of the given users in one query
func (r *ProfileRepository) GetByIDs(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id::text, COALESCE(full_name, ''), COALESCE(email, '')
		FROM ` + string(TableProfiles) + `
		WHERE id::text = ANY($1::text[])
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, classify(err, "get profiles")
	}
	defer rows.Close()

	var profiles []models.UserProfile
	for rows.Next() {
		var p models.UserProfile
		if err := rows.Scan(&p.ID, &p.FullName, &p.Email); err != nil {
			return nil, fmt.Errorf("get profiles: failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "get profiles")
	}
	return profiles, nil
}
