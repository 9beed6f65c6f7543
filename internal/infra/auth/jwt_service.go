package auth

import (
	"time"

	"rssauth/config"
	"rssauth/internal/domain/entity"
	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MinSigningKeyLength is the shortest HS256 key accepted at startup.
const MinSigningKeyLength = 32

var (
	// ErrSigningKeyMissing aborts startup when no signing key is configured.
	ErrSigningKeyMissing = errors.New("token signing key must be provided")
	// ErrSigningKeyTooShort aborts startup when the key is too weak for HS256.
	ErrSigningKeyTooShort = errors.Errorf("token signing key must be at least %d bytes", MinSigningKeyLength)
)

// jwtService issues and verifies HS256 access tokens with a single process-wide key.
type jwtService struct {
	signingKey []byte        // Immutable after construction.
	issuer     string        // Written to and required in the iss claim.
	ttl        time.Duration // Default validity window.
	now        func() time.Time
}

// NewJWTService is the constructor for jwtService.
// It fails when the signing key is absent or weak, which stops the fx app from starting.
func NewJWTService(cfg *config.Config) (service.TokenService, error) {
	if cfg == nil || cfg.Auth == nil {
		return nil, ErrSigningKeyMissing
	}

	return newJWTService(cfg.Auth.Token, time.Now)
}

func newJWTService(tc config.TokenConfig, now func() time.Time) (*jwtService, error) {
	if tc.SigningKey == "" {
		return nil, ErrSigningKeyMissing
	}
	if len(tc.SigningKey) < MinSigningKeyLength {
		return nil, ErrSigningKeyTooShort
	}
	if tc.TTL <= 0 {
		return nil, errors.Errorf("token ttl must be positive, got %s", tc.TTL)
	}

	return &jwtService{
		signingKey: []byte(tc.SigningKey),
		issuer:     tc.Issuer,
		ttl:        tc.TTL,
		now:        now,
	}, nil
}

// Issue creates a signed token for the given identity.
func (s *jwtService) Issue(userID uuid.UUID, username string, role entity.Role, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	claims := service.Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}

	return signed, claims.ExpiresAt.Time, nil
}

// DefaultTTL returns the configured validity window.
func (s *jwtService) DefaultTTL() time.Duration {
	return s.ttl
}

// Verify checks structure, then signature, then expiry.
func (s *jwtService) Verify(tokenString string) (*service.Claims, error) {
	if tokenString == "" {
		return nil, domainerrors.ErrTokenMalformed.WrapMessage("empty token")
	}

	claims := &service.Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	if claims.UserID == uuid.Nil || claims.Subject != claims.UserID.String() {
		return nil, domainerrors.ErrTokenMalformed.WrapMessage("token subject does not match user id")
	}

	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return domainerrors.ErrTokenMalformed.WrapMessage(err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domainerrors.ErrTokenInvalidSignature.WrapMessage(err.Error())
	case errors.Is(err, jwt.ErrTokenExpired):
		return domainerrors.ErrTokenExpired.WrapMessage(err.Error())
	default:
		// Signed by us but with claims we do not accept (issuer, nbf, missing exp).
		return domainerrors.ErrTokenMalformed.WrapMessage(err.Error())
	}
}
