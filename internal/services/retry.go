package services

import (
	"context"
	"errors"
	"time"

	apperrors "family-calendar-backend/internal/errors"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often an operation is retried and which failures qualify
type RetryPolicy struct {
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable classifies failures; nil means every failure except
	// authentication loss and context cancellation is retried.
	Retryable func(error) bool
}

// DefaultFetchRetryPolicy allows two retries of an event fetch
func DefaultFetchRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialInterval: 250 * time.Millisecond, MaxInterval: 2 * time.Second}
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if apperrors.Is(err, apperrors.ErrUnauthenticated) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// retry runs op once plus at most p.MaxRetries more times while it fails with
// a retryable error.
func retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !p.retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxRetries+1),
	)
}
