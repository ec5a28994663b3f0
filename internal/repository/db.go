package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Table names the tables the repositories touch
type Table string

const (
	TableEvents        Table = "events"
	TableEventFamilies Table = "event_families"
	TableFamilies      Table = "families"
	TableFamilyMembers Table = "family_members"
	TableInvitations   Table = "invitations"
	TableProfiles      Table = "profiles"
)

// Function names the server-side SQL functions the repositories call
type Function string

const (
	FuncAccessibleEvents   Function = "get_all_accessible_events"
	FuncUserFamilies       Function = "get_user_families"
	FuncCreateFamilySafely Function = "create_family_safely"
	FuncCheckEventAccess   Function = "check_event_access"
	FuncFunctionExists     Function = "function_exists"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrUniqueViolation is returned when a write hits a unique constraint
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrFunctionUnavailable is returned when a SQL function is not defined
	ErrFunctionUnavailable = errors.New("function unavailable")
)

const (
	sqlStateUniqueViolation   = "23505"
	sqlStateUndefinedFunction = "42883"
)

// classify maps driver errors onto the repository sentinels, keeping the
// original error in the chain.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return fmt.Errorf("%s: %w (%s): %w", op, ErrUniqueViolation, pgErr.ConstraintName, err)
		case sqlStateUndefinedFunction:
			return fmt.Errorf("%s: %w: %w", op, ErrFunctionUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
