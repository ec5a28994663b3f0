package repository

import (
	"context"
	"fmt"
	"time"

	"family-calendar-backend/internal/mapper"
	"family-calendar-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id::text, name, date, end_date, time, description, all_day, creator_id::text, created_at`

// EventRepository handles database operations for events
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Insert creates an event and returns the stored row
func (r *EventRepository) Insert(ctx context.Context, rec *models.EventRecord) (*models.EventRecord, error) {
	query := `
		INSERT INTO ` + string(TableEvents) + ` (name, date, end_date, time, description, all_day, creator_id)
		VALUES ($1, $2::timestamptz, $3::timestamptz, $4, $5, $6, $7)
		RETURNING ` + eventColumns
	row := r.db.QueryRow(ctx, query,
		rec.Name, rec.Date, rec.EndDate, rec.Time, rec.Description, rec.AllDay, rec.CreatorID,
	)
	created, err := scanEvent(row)
	if err != nil {
		return nil, classify(err, "insert event")
	}
	return created, nil
}

// Update overwrites the mutable fields of an event
func (r *EventRepository) Update(ctx context.Context, id string, rec *models.EventRecord) (*models.EventRecord, error) {
	query := `
		UPDATE ` + string(TableEvents) + `
		SET name = $2, date = $3::timestamptz, end_date = $4::timestamptz, time = $5,
		    description = $6, all_day = $7, creator_id = $8
		WHERE id::text = $1
		RETURNING ` + eventColumns
	row := r.db.QueryRow(ctx, query,
		id, rec.Name, rec.Date, rec.EndDate, rec.Time, rec.Description, rec.AllDay, rec.CreatorID,
	)
	updated, err := scanEvent(row)
	if err != nil {
		return nil, classify(err, "update event")
	}
	return updated, nil
}

// GetByID retrieves an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM ` + string(TableEvents) + ` WHERE id::text = $1`
	rec, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "get event")
	}
	return rec, nil
}

// Delete deletes an event by ID
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM ` + string(TableEvents) + ` WHERE id::text = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return classify(err, "delete event")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete event: %w", ErrNotFound)
	}
	return nil
}

// ListByCreator retrieves the events created by a user
func (r *EventRepository) ListByCreator(ctx context.Context, userID string) ([]models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ` + string(TableEvents) + `
		WHERE creator_id::text = $1
		ORDER BY date ASC`
	return r.list(ctx, "list personal events", query, userID)
}

// ListByCreatorOrIDs retrieves events created by a user or whose id is in ids
func (r *EventRepository) ListByCreatorOrIDs(ctx context.Context, userID string, ids []string) ([]models.EventRecord, error) {
	if ids == nil {
		ids = []string{}
	}
	query := `
		SELECT ` + eventColumns + `
		FROM ` + string(TableEvents) + `
		WHERE creator_id::text = $1 OR id::text = ANY($2::text[])
		ORDER BY date ASC`
	return r.list(ctx, "list accessible events", query, userID, ids)
}

func (r *EventRepository) list(ctx context.Context, op, query string, args ...any) ([]models.EventRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	return collectEvents(rows, op)
}

func collectEvents(rows pgx.Rows, op string) ([]models.EventRecord, error) {
	defer rows.Close()

	var events []models.EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan event: %w", op, err)
		}
		events = append(events, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, op)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*models.EventRecord, error) {
	var (
		rec             models.EventRecord
		date, createdAt time.Time
		endDate         *time.Time
		description     *string
	)
	if err := row.Scan(
		&rec.ID, &rec.Name, &date, &endDate, &rec.Time, &description, &rec.AllDay, &rec.CreatorID, &createdAt,
	); err != nil {
		return nil, err
	}
	rec.Date = mapper.FormatTimestamp(date)
	rec.EndDate = rec.Date
	if endDate != nil {
		rec.EndDate = mapper.FormatTimestamp(*endDate)
	}
	rec.CreatedAt = mapper.FormatTimestamp(createdAt)
	if description != nil {
		rec.Description = *description
	}
	return &rec, nil
}
