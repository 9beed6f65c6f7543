// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"rssauth/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new account.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginInput defines the data required for a user to log in.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// --- Output DTOs ---

// RegisterOutput returns the newly created account's public profile.
type RegisterOutput struct {
	User *entity.Profile
}

// LoginOutput carries the issued token and the caller's public profile.
type LoginOutput struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      *entity.Profile `json:"user"`
}

// AuthUsecase defines the credential flows the delivery layer depends on.
type AuthUsecase interface {
	// Register creates an account with role user and returns its profile.
	Register(ctx context.Context, input *RegisterInput) (*RegisterOutput, error)

	// Login checks credentials and issues an access token.
	Login(ctx context.Context, input *LoginInput) (*LoginOutput, error)

	// Profile returns the current profile of an authenticated user.
	Profile(ctx context.Context, userID uuid.UUID) (*entity.Profile, error)
}

// AdminInput defines an operator-created account.
type AdminInput struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// AdminUsecase provisions accounts with elevated roles. It is reachable only
// from the operator CLI, never over HTTP.
type AdminUsecase interface {
	CreateAdmin(ctx context.Context, input *AdminInput) (*entity.Profile, error)
}
