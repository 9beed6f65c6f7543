package service

import (
	"time"

	"rssauth/internal/domain/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the identity claims embedded in an access token. They reflect the
// user at issuance time.
type Claims struct {
	UserID   uuid.UUID   `json:"userId"`
	Username string      `json:"username"`
	Role     entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the verified caller attached to a request.
type Identity struct {
	UserID   uuid.UUID   `json:"userId"`
	Username string      `json:"username"`
	Role     entity.Role `json:"role"`
}

// Identity returns the caller identity carried by the claims.
func (c *Claims) Identity() *Identity {
	return &Identity{
		UserID:   c.UserID,
		Username: c.Username,
		Role:     c.Role,
	}
}

// TokenIssuer creates signed, time-bounded access tokens.
type TokenIssuer interface {
	// Issue signs a token for the user. A ttl <= 0 selects the configured default.
	Issue(userID uuid.UUID, username string, role entity.Role, ttl time.Duration) (token string, expiresAt time.Time, err error)

	// DefaultTTL returns the validity window applied when callers omit one.
	DefaultTTL() time.Duration
}

// TokenVerifier validates tokens produced by a TokenIssuer sharing the same key.
// It fails with domain errors ErrTokenMalformed, ErrTokenInvalidSignature or
// ErrTokenExpired.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// TokenService is the issuer and verifier pair backed by one signing key.
type TokenService interface {
	TokenIssuer
	TokenVerifier
}
