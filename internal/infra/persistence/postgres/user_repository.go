// Package postgres contains the concrete implementation of the persistence layer using GORM and PostgreSQL.
package postgres

import (
	"context"
	"time"

	"rssauth/config"
	"rssauth/internal/domain/entity"
	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/domain/repository"
	"rssauth/internal/errors"
	"rssauth/internal/infra/persistence/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// userRepository implements repository.UserRepository using GORM.
type userRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
	now          func() time.Time
}

// NewUserRepository is the constructor for userRepository.
// It returns the repository as a repository.UserRepository interface, adhering to dependency inversion.
func NewUserRepository(db *gorm.DB, cfg *config.Config) repository.UserRepository {
	var timeout time.Duration
	if cfg != nil && cfg.Store != nil {
		timeout = cfg.Store.QueryTimeout
	}

	return &userRepository{
		db:           db,
		queryTimeout: timeout,
		now:          time.Now,
	}
}

func (repo *userRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if repo.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, repo.queryTimeout)
}

// FindByUsernameOrEmail returns the first user owning either identifier.
func (repo *userRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error) {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	var userM model.UserModel
	err := repo.db.WithContext(ctx).
		Where("username = ? OR email = ?", username, email).
		Take(&userM).Error
	if err != nil {
		return nil, repo.translateReadError(err, "failed to find user by username or email")
	}

	return toUserDomain(&userM), nil
}

// FindByUsername retrieves a single user including the password hash.
func (repo *userRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	var userM model.UserModel
	err := repo.db.WithContext(ctx).
		Where("username = ?", username).
		Take(&userM).Error
	if err != nil {
		return nil, repo.translateReadError(err, "failed to find user by username")
	}

	return toUserDomain(&userM), nil
}

// FindByID retrieves a single user by their unique ID.
func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	var userM model.UserModel
	err := repo.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&userM).Error
	if err != nil {
		return nil, repo.translateReadError(err, "failed to find user by id")
	}

	return toUserDomain(&userM), nil
}

// Insert persists a new user. The unique constraints on username and email make
// the existence check and the write atomic.
func (repo *userRepository) Insert(ctx context.Context, user *entity.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Wrap(err, "failed to generate user id")
		}
		user.ID = id
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = repo.now().UTC()
	}

	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	userM := fromUserDomain(user)
	if err := repo.db.WithContext(ctx).Create(userM).Error; err != nil {
		switch {
		case isUniqueConstraintViolation(err):
			if field := violatedUniqueField(err); field != "" {
				return domainerrors.ErrUserAlreadyExists.WrapMessage(field + " already taken")
			}

			return domainerrors.ErrUserAlreadyExists.WrapMessage("username or email already taken")
		case isCheckConstraintViolation(err):
			return errors.Wrapf(err, "rejected role %q", user.Role)
		case isUnavailable(err):
			return domainerrors.NewStoreError(err, "failed to insert user")
		default:
			return errors.Wrap(err, "failed to insert user")
		}
	}

	return nil
}

// Ping checks the connection pool can reach the server.
func (repo *userRepository) Ping(ctx context.Context) error {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	sqlDB, err := repo.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get PostgreSQL sql.DB")
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return domainerrors.NewStoreError(err, "failed to ping PostgreSQL")
	}

	return nil
}

func (repo *userRepository) translateReadError(err error, message string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrUserNotFound
	case isUnavailable(err):
		return domainerrors.NewStoreError(err, message)
	default:
		return errors.Wrap(err, message)
	}
}

// toUserDomain converts a GORM UserModel to a domain User entity.
func toUserDomain(data *model.UserModel) *entity.User {
	if data == nil {
		return nil
	}

	return &entity.User{
		ID:           data.ID,
		Username:     data.Username,
		Email:        data.Email,
		PasswordHash: data.PasswordHash,
		Role:         entity.ParseRole(data.Role),
		CreatedAt:    data.CreatedAt,
	}
}

// fromUserDomain converts a domain User entity to a GORM UserModel for persistence.
func fromUserDomain(data *entity.User) *model.UserModel {
	if data == nil {
		return nil
	}

	return &model.UserModel{
		ID:           data.ID,
		Username:     data.Username,
		Email:        data.Email,
		PasswordHash: data.PasswordHash,
		Role:         data.Role.String(),
		CreatedAt:    data.CreatedAt,
	}
}
