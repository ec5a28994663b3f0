// Package session carries the authenticated caller on a request context.
package session

import (
	"context"
	"time"
)

type contextKey struct{}

// Session is the authenticated caller
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewContext returns a context carrying s
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached to ctx, if any
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	if !ok || s == nil || s.UserID == "" {
		return nil, false
	}
	return s, true
}
