package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cpcomms/dispatch/internal/api/shared"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/service/auth"
)

// AccessTokenParam is the query parameter accepted on socket upgrades, where
// browsers cannot set an Authorization header.
const AccessTokenParam = "access_token"

// AuthMiddleware verifies session tokens and stores the actor in the
// request context.
type AuthMiddleware struct {
	jwtService auth.JWTService
	cookieName string
}

// NewAuthMiddleware creates a new AuthMiddleware. An empty cookieName
// disables cookie sessions.
func NewAuthMiddleware(jwtService auth.JWTService, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		cookieName: cookieName,
	}
}

// extractToken looks for a session token in the Authorization header, then
// the session cookie, then the access_token query parameter.
func (m *AuthMiddleware) extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", auth.ErrInvalidToken
		}
		return strings.TrimSpace(token), nil
	}
	if m.cookieName != "" {
		if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	if token := r.URL.Query().Get(AccessTokenParam); token != "" {
		return token, nil
	}
	return "", auth.ErrMissingToken
}

// Authenticate rejects requests without a valid session with 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		token, err := m.extractToken(r)
		if err == nil {
			var claims *auth.Claims
			claims, err = m.jwtService.ValidateToken(r.Context(), token)
			if err == nil {
				actor := claims.Actor()
				log = log.With(slog.String("actor_id", actor.ID), slog.String("role", string(actor.Role)))
				ctx := logger.WithLogger(shared.WithActor(r.Context(), actor), log)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		message := "Invalid token"
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			message = "Authentication required"
		case errors.Is(err, auth.ErrExpiredToken):
			message = "Token expired"
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, shared.ClassUnauthenticated, message, err)
	})
}
