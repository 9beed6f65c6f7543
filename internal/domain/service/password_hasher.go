// Package service defines interfaces for core, stateless domain logic.
// These services encapsulate business rules that don't naturally fit within a single entity.
package service

import "errors"

// PasswordHasher defines the interface for password hashing and verification.
type PasswordHasher interface {
	// Hash generates a salted digest from a plaintext password. Two calls with the
	// same input return different digests.
	Hash(password string) (string, error)

	// Check reports whether password matches digest. A mismatch or an unparsable
	// digest is false, never an error.
	Check(password, digest string) bool

	// DummyCheck performs a comparison of the same cost as Check against a digest
	// no password matches. Used when there is no stored digest to compare with.
	DummyCheck(password string)
}

// ErrPasswordTooLong is returned by Hash when the password exceeds the
// algorithm's input limit (72 bytes for bcrypt).
var ErrPasswordTooLong = errors.New("password exceeds hasher input limit")
