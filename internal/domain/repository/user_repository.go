// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"rssauth/internal/domain/entity"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned when no user matches the lookup.
// Connectivity failures are reported as domain StoreError values instead.
var ErrUserNotFound = errors.New("user not found")

// UserRepository is the credential store port. Implementations must enforce
// username and email uniqueness themselves and report a violation from Insert
// as domainerrors.ErrUserAlreadyExists.
type UserRepository interface {
	// FindByUsernameOrEmail returns any user whose username or email matches.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error)

	// FindByUsername retrieves a single user, including the password hash.
	FindByUsername(ctx context.Context, username string) (*entity.User, error)

	// FindByID retrieves a single user by their unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// Insert persists a new user atomically and fills in ID and CreatedAt.
	Insert(ctx context.Context, user *entity.User) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
