package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"rssauth/config"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Upper bounds accepted when decoding a stored digest, so a tampered row cannot
// make a single Check allocate gigabytes.
const (
	maxArgon2Memory  = 1 << 20 // KiB
	maxArgon2Time    = 16
	maxArgon2Threads = 16
)

var errInvalidArgon2Digest = errors.New("invalid argon2id digest")

// argon2Hasher hashes passwords with argon2id and encodes them in PHC string format:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<b64 salt>$<b64 key>
type argon2Hasher struct {
	params config.Argon2Config
	dummy  string
}

// NewArgon2Hasher creates an argon2id hasher with the given parameters.
func NewArgon2Hasher(params config.Argon2Config) (*argon2Hasher, error) {
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 || params.SaltLen < 8 || params.KeyLen < 16 {
		return nil, errors.Errorf("argon2 parameters too weak: %+v", params)
	}
	if params.Memory > maxArgon2Memory || params.Time > maxArgon2Time || params.Threads > maxArgon2Threads {
		return nil, errors.Errorf("argon2 parameters too large: %+v", params)
	}

	h := &argon2Hasher{params: params}

	secret, err := randomBytes(24)
	if err != nil {
		return nil, errors.Wrap(err, "generate dummy secret")
	}
	if h.dummy, err = h.Hash(string(secret)); err != nil {
		return nil, errors.Wrap(err, "generate dummy digest")
	}

	return h, nil
}

// Hash derives an argon2id key with a fresh random salt.
func (h *argon2Hasher) Hash(password string) (string, error) {
	salt, err := randomBytes(h.params.SaltLen)
	if err != nil {
		return "", errors.Wrap(err, "generate salt")
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Check recomputes the key with the parameters and salt stored in the digest.
func (h *argon2Hasher) Check(password, digest string) bool {
	params, salt, key, err := decodeArgon2(digest)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(key)))

	return subtle.ConstantTimeCompare(candidate, key) == 1
}

// DummyCheck burns the same CPU as a real Check.
func (h *argon2Hasher) DummyCheck(password string) {
	_ = h.Check(password, h.dummy)
}

func (h *argon2Hasher) owns(digest string) bool {
	return strings.HasPrefix(digest, argon2Prefix)
}

func decodeArgon2(digest string) (config.Argon2Config, []byte, []byte, error) {
	var params config.Argon2Config

	if !strings.HasPrefix(digest, argon2Prefix) {
		return params, nil, nil, errInvalidArgon2Digest
	}

	parts := strings.Split(strings.TrimPrefix(digest, argon2Prefix), "$")
	if len(parts) != 4 {
		return params, nil, nil, errInvalidArgon2Digest
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, errInvalidArgon2Digest
	}

	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return params, nil, nil, errInvalidArgon2Digest
	}
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 ||
		params.Memory > maxArgon2Memory || params.Time > maxArgon2Time || params.Threads > maxArgon2Threads {
		return params, nil, nil, errInvalidArgon2Digest
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, errInvalidArgon2Digest
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return params, nil, nil, errInvalidArgon2Digest
	}

	return params, salt, key, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.WithStack(err)
	}

	return b, nil
}
