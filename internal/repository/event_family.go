package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventFamilyRepository handles the event_families join table
type EventFamilyRepository struct {
	db *pgxpool.Pool
}

// NewEventFamilyRepository creates a new event-family repository
func NewEventFamilyRepository(db *pgxpool.Pool) *EventFamilyRepository {
	return &EventFamilyRepository{db: db}
}

// InsertForEvent links an event to each family in one batch. Links that
// already exist are left alone. Returns the number of rows inserted.
func (r *EventFamilyRepository) InsertForEvent(ctx context.Context, eventID string, familyIDs []string, sharedBy string) (int64, error) {
	if len(familyIDs) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO ` + string(TableEventFamilies) + ` (event_id, family_id, shared_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, family_id) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, familyID := range familyIDs {
		batch.Queue(query, eventID, familyID, sharedBy)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range familyIDs {
		tag, err := results.Exec()
		if err != nil {
			return inserted, classify(err, "link event to family")
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// DeleteByEvent removes every family link of an event
func (r *EventFamilyRepository) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	query := `DELETE FROM ` + string(TableEventFamilies) + ` WHERE event_id::text = $1`
	result, err := r.db.Exec(ctx, query, eventID)
	if err != nil {
		return 0, classify(err, "unlink event families")
	}
	return result.RowsAffected(), nil
}

// EventIDsForFamilies returns the distinct ids of events shared with any of the families
func (r *EventFamilyRepository) EventIDsForFamilies(ctx context.Context, familyIDs []string) ([]string, error) {
	if len(familyIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT event_id::text
		FROM ` + string(TableEventFamilies) + `
		WHERE family_id::text = ANY($1::text[])
	`
	return r.ids(ctx, "list shared event ids", query, familyIDs)
}

// FamilyIDsForEvent returns the ids of the families an event is shared with
func (r *EventFamilyRepository) FamilyIDsForEvent(ctx context.Context, eventID string) ([]string, error) {
	query := `SELECT family_id::text FROM ` + string(TableEventFamilies) + ` WHERE event_id::text = $1`
	return r.ids(ctx, "list event families", query, eventID)
}

func (r *EventFamilyRepository) ids(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}
