package services

import (
	"context"
	"fmt"

	apperrors "family-calendar-backend/internal/errors"

	"github.com/rs/zerolog/log"
)

// Warnings are non-fatal failures of secondary operations, returned alongside
// a successful primary result.
type Warnings []string

// sideEffect is a best-effort step that runs after the primary write committed
type sideEffect struct {
	name string
	run  func(ctx context.Context) error
}

// runSideEffects runs each effect in order. A failing or panicking effect
// never stops the next one; its failure becomes a warning.
func runSideEffects(ctx context.Context, effects []sideEffect) Warnings {
	var warnings Warnings
	for _, effect := range effects {
		if err := runSideEffect(ctx, effect); err != nil {
			log.Warn().Err(err).Str("effect", effect.name).Msg("Side effect failed")
			warnings = append(warnings, fmt.Sprintf("%s failed: %s", effect.name, apperrors.Message(err)))
		}
	}
	return warnings
}

func runSideEffect(ctx context.Context, effect sideEffect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Internal("unexpected failure", fmt.Errorf("panic: %v", r))
		}
	}()
	return effect.run(ctx)
}

// guard converts a panic escaping a workflow entry point into an internal error
func guard(op string, err *error) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Str("op", op).Msg("Recovered from panic")
		*err = apperrors.Internal(op+" failed unexpectedly", fmt.Errorf("panic: %v", r))
	}
}
