// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"strings"

	"rssauth/internal/domain/service"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// bcryptHasher hashes passwords with bcrypt at a fixed cost.
type bcryptHasher struct {
	cost  int
	dummy []byte // digest of a random secret, compared against on unknown-user logins
}

// NewBcryptHasherWithCost creates a bcrypt hasher with the given work factor.
func NewBcryptHasherWithCost(cost int) (*bcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	secret, err := randomBytes(24)
	if err != nil {
		return nil, errors.Wrap(err, "generate dummy secret")
	}

	dummy, err := bcrypt.GenerateFromPassword(secret, cost)
	if err != nil {
		return nil, errors.Wrap(err, "generate dummy digest")
	}

	return &bcryptHasher{cost: cost, dummy: dummy}, nil
}

// Hash generates a salted hash from a plaintext password using bcrypt.
// bcrypt automatically handles salt generation.
func (h *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", service.ErrPasswordTooLong
	}
	if err != nil {
		return "", errors.WithStack(err)
	}

	return string(bytes), nil
}

// Check compares a plaintext password with a bcrypt hash.
func (h *bcryptHasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyCheck burns the same CPU as a real Check.
func (h *bcryptHasher) DummyCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

func (h *bcryptHasher) owns(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}
