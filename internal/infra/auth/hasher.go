package auth

import (
	"rssauth/config"
	"rssauth/internal/domain/service"

	"github.com/pkg/errors"
)

// Hash algorithms accepted in auth.hasher.algorithm.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

type digestHasher interface {
	service.PasswordHasher
	owns(digest string) bool
}

// passwordHasher hashes with the configured algorithm and verifies any digest
// format it knows, so existing rows keep working after the algorithm changes.
type passwordHasher struct {
	primary digestHasher
	all     []digestHasher
}

// NewPasswordHasher builds the Secret Hasher from configuration.
func NewPasswordHasher(cfg *config.Config) (service.PasswordHasher, error) {
	if cfg == nil || cfg.Auth == nil {
		return nil, errors.New("auth configuration is required")
	}

	hc := cfg.Auth.Hasher

	bcryptH, err := NewBcryptHasherWithCost(hc.BcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "create bcrypt hasher")
	}

	argonH, err := NewArgon2Hasher(hc.Argon2)
	if err != nil {
		return nil, errors.Wrap(err, "create argon2id hasher")
	}

	h := &passwordHasher{all: []digestHasher{bcryptH, argonH}}

	switch hc.Algorithm {
	case AlgorithmBcrypt, "":
		h.primary = bcryptH
	case AlgorithmArgon2id:
		h.primary = argonH
	default:
		return nil, errors.Errorf("unknown hash algorithm %q", hc.Algorithm)
	}

	return h, nil
}

// Hash uses the configured algorithm.
func (h *passwordHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

// Check picks the algorithm from the digest prefix.
func (h *passwordHasher) Check(password, digest string) bool {
	for _, candidate := range h.all {
		if candidate.owns(digest) {
			return candidate.Check(password, digest)
		}
	}

	// Unknown format: still pay for a comparison.
	h.primary.DummyCheck(password)

	return false
}

// DummyCheck delegates to the configured algorithm.
func (h *passwordHasher) DummyCheck(password string) {
	h.primary.DummyCheck(password)
}
