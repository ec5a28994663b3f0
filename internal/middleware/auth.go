package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "family-calendar-backend/internal/errors"
	"family-calendar-backend/internal/services"
	"family-calendar-backend/internal/session"

	"github.com/rs/zerolog/log"
)

// AuthMiddleware creates a middleware for JWT authentication. The validated
// session is attached to the request context.
func AuthMiddleware(sessions *services.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				respondError(w, "Invalid authorization header format")
				return
			}

			sess, err := sessions.ValidateToken(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected access token")
				respondError(w, "Invalid token")
				return
			}

			ctx := session.NewContext(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts user ID from context
func GetUserID(r *http.Request) string {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return ""
	}
	return sess.UserID
}

// respondError sends an unauthenticated error response
func respondError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  string(apperrors.CodeUnauthenticated),
	})
}

// ValidateWebSocketToken validates JWT token from WebSocket query parameter
func ValidateWebSocketToken(token string, sessions *services.SessionService) (*session.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("token required")
	}
	return sessions.ValidateToken(token)
}
