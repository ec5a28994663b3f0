package services

import (
	"context"
	"fmt"
	"time"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/session"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims are the claims of an access token issued by the auth service
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionService validates and refreshes access tokens
type SessionService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(secret string, ttl time.Duration) *SessionService {
	return &SessionService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// ValidateToken validates an access token and returns the session it carries
func (s *SessionService) ValidateToken(tokenString string) (*session.Session, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("subject not found in token")
	}

	return &session.Session{
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// IssueToken signs a token for sess valid for the configured TTL
func (s *SessionService) IssueToken(sess *session.Session) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := sessionClaims{
		Email: sess.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// RefreshedSession is a new token for the caller's still-valid session
type RefreshedSession struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
}

// Refresh issues a new token for the session on ctx
func (s *SessionService) Refresh(ctx context.Context) (*RefreshedSession, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperrors.Authentication("you must be signed in")
	}
	token, expiresAt, err := s.IssueToken(sess)
	if err != nil {
		return nil, apperrors.Internal("could not refresh session", err)
	}
	return &RefreshedSession{AccessToken: token, ExpiresAt: expiresAt, UserID: sess.UserID}, nil
}
