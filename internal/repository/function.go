package repository

import (
	"context"
	"errors"

	"family-calendar-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FunctionRepository invokes the privileged server-side SQL functions. The
// functions run as their owner, so callers pass the acting user explicitly.
type FunctionRepository struct {
	db *pgxpool.Pool
}

// NewFunctionRepository creates a new function repository
func NewFunctionRepository(db *pgxpool.Pool) *FunctionRepository {
	return &FunctionRepository{db: db}
}

// AccessibleEvents returns every event the user may read: their own and the
// ones shared with families they belong to.
func (r *FunctionRepository) AccessibleEvents(ctx context.Context, userID string) ([]models.EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM ` + string(FuncAccessibleEvents) + `($1)`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(err, string(FuncAccessibleEvents))
	}
	return collectEvents(rows, string(FuncAccessibleEvents))
}

// UserFamilies returns the families the user belongs to
func (r *FunctionRepository) UserFamilies(ctx context.Context, userID string) ([]models.Family, error) {
	query := `SELECT ` + familyColumns + ` FROM ` + string(FuncUserFamilies) + `($1)`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(err, string(FuncUserFamilies))
	}
	return collectFamilies(rows, string(FuncUserFamilies))
}

// CreateFamilySafely creates a family and the creator's admin membership in
// one server-side transaction.
func (r *FunctionRepository) CreateFamilySafely(ctx context.Context, name, color, userID string) (*models.Family, error) {
	query := `SELECT ` + familyColumns + ` FROM ` + string(FuncCreateFamilySafely) + `($1, $2, $3)`
	family, err := scanFamily(r.db.QueryRow(ctx, query, name, color, userID))
	if err != nil {
		return nil, classify(err, string(FuncCreateFamilySafely))
	}
	return family, nil
}

// CheckEventAccess reports whether the user may read the event
func (r *FunctionRepository) CheckEventAccess(ctx context.Context, eventID, userID string) (bool, error) {
	query := `SELECT ` + string(FuncCheckEventAccess) + `($1, $2)`
	var ok bool
	if err := r.db.QueryRow(ctx, query, eventID, userID).Scan(&ok); err != nil {
		return false, classify(err, string(FuncCheckEventAccess))
	}
	return ok, nil
}

// Exists reports whether a server-side function is defined. It asks the
// function_exists helper first and falls back to the catalog when the helper
// itself is missing.
func (r *FunctionRepository) Exists(ctx context.Context, fn Function) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT `+string(FuncFunctionExists)+`($1)`, string(fn)).Scan(&ok)
	if err == nil {
		return ok, nil
	}
	if err = classify(err, string(FuncFunctionExists)); !errors.Is(err, ErrFunctionUnavailable) {
		return false, err
	}

	query := `SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1)`
	if err := r.db.QueryRow(ctx, query, string(fn)).Scan(&ok); err != nil {
		return false, classify(err, "probe function")
	}
	return ok, nil
}
