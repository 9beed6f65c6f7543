// Package memory provides a process-local credential store used for development
// and tests. Nothing is persisted across restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"rssauth/internal/domain/entity"
	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/domain/repository"
	"rssauth/internal/errors"

	"github.com/google/uuid"
)

type userRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*entity.User
	byUsername map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
	now        func() time.Time
}

// NewUserRepository creates an empty in-memory store.
func NewUserRepository() repository.UserRepository {
	return newUserRepository(time.Now)
}

func newUserRepository(now func() time.Time) *userRepository {
	return &userRepository{
		byID:       make(map[uuid.UUID]*entity.User),
		byUsername: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
		now:        now,
	}
}

func (repo *userRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.NewStoreError(err, "find user by username or email")
	}

	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if id, ok := repo.byUsername[username]; ok {
		return clone(repo.byID[id]), nil
	}
	if id, ok := repo.byEmail[email]; ok {
		return clone(repo.byID[id]), nil
	}

	return nil, repository.ErrUserNotFound
}

func (repo *userRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.NewStoreError(err, "find user by username")
	}

	repo.mu.RLock()
	defer repo.mu.RUnlock()

	id, ok := repo.byUsername[username]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	return clone(repo.byID[id]), nil
}

func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.NewStoreError(err, "find user by id")
	}

	repo.mu.RLock()
	defer repo.mu.RUnlock()

	user, ok := repo.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	return clone(user), nil
}

// Insert checks both unique keys and writes under one lock.
func (repo *userRepository) Insert(ctx context.Context, user *entity.User) error {
	if err := ctx.Err(); err != nil {
		return domainerrors.NewStoreError(err, "insert user")
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, taken := repo.byUsername[user.Username]; taken {
		return domainerrors.ErrUserAlreadyExists.WrapMessage("username already taken")
	}
	if _, taken := repo.byEmail[user.Email]; taken {
		return domainerrors.ErrUserAlreadyExists.WrapMessage("email already taken")
	}

	if user.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Wrap(err, "generate user id")
		}
		user.ID = id
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = repo.now().UTC()
	}

	stored := clone(user)
	repo.byID[stored.ID] = stored
	repo.byUsername[stored.Username] = stored.ID
	repo.byEmail[stored.Email] = stored.ID

	return nil
}

// Ping always succeeds.
func (repo *userRepository) Ping(context.Context) error {
	return nil
}

func clone(user *entity.User) *entity.User {
	if user == nil {
		return nil
	}
	cp := *user

	return &cp
}
