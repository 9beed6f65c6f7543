// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is an account known to the credential store.
// PasswordHash is the Secret Hasher's digest and must never leave the service.
type User struct {
	ID           uuid.UUID // Immutable after creation.
	Username     string    // Unique, at least three characters after trimming.
	Email        string    // Unique.
	PasswordHash string    // Salted one-way digest.
	Role         Role      // Always RoleUser for self-registered accounts.
	CreatedAt    time.Time // Set once by the store.
}

// Profile is the public view of a User. It carries no secret material.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile returns the public view of the user.
func (u *User) Profile() *Profile {
	if u == nil {
		return nil
	}

	return &Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
