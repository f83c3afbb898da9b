// Package auth verifies the session tokens issued by the login service and
// turns them into domain actors.
package auth

import (
	"context"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
)

// JWTService signs and verifies session tokens.
type JWTService interface {
	// GenerateToken creates a signed session token for actor with the
	// configured lifetime.
	GenerateToken(ctx context.Context, actor domain.Actor) (string, error)

	// GenerateTokenWithLifetime is GenerateToken with an explicit lifetime.
	GenerateTokenWithLifetime(ctx context.Context, actor domain.Actor, lifetime time.Duration) (string, error)

	// ValidateToken verifies tokenString and extracts its claims.
	// Expired, malformed, badly signed, and unknown-role tokens are rejected.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the verified contents of a session token.
type Claims struct {
	UserID string
	Role   domain.Role
	Fleet  string

	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Actor returns the identity the claims describe.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{ID: c.UserID, Role: c.Role, Fleet: c.Fleet}
}
