// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"rssauth/config"
	deliverycontext "rssauth/internal/delivery/context"
	"rssauth/internal/domain/entity"
	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/domain/repository"
	"rssauth/internal/domain/service"
	"rssauth/internal/infra/metrics"
	"rssauth/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// authService implements usecase.AuthUsecase and usecase.AdminUsecase.
type authService struct {
	userRepo            repository.UserRepository
	hasher              service.PasswordHasher
	tokenIssuer         service.TokenIssuer
	validator           service.InputValidator
	metrics             *metrics.Recorder
	equalizeLoginTiming bool
	logger              *slog.Logger
}

// AuthServiceParams holds dependencies for authService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	UserRepo     repository.UserRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	Validator    service.InputValidator
	Metrics      *metrics.Recorder `optional:"true"`
	Config       *config.Config
	Logger       *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return newAuthService(params)
}

// NewAdminService exposes the operator-only flows of authService.
func NewAdminService(params AuthServiceParams) usecase.AdminUsecase {
	return newAuthService(params)
}

func newAuthService(params AuthServiceParams) *authService {
	equalize := true
	if params.Config != nil {
		equalize = params.Config.Auth.ShouldEqualizeLoginTiming()
	}

	return &authService{
		userRepo:            params.UserRepo,
		hasher:              params.Hasher,
		tokenIssuer:         params.TokenService,
		validator:           params.Validator,
		metrics:             params.Metrics,
		equalizeLoginTiming: equalize,
		logger:              params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register validates the input, rejects taken usernames and emails, and stores
// a new account with role user.
func (srv *authService) Register(ctx context.Context, input *usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	normalized := usecase.RegisterInput{}
	if input != nil {
		normalized = *input
	}
	normalized.Username = strings.TrimSpace(normalized.Username)

	if err := srv.validator.Validate(&normalized); err != nil {
		srv.metrics.Registration(metrics.OutcomeInvalidInput)

		return nil, errors.WithStack(err)
	}

	user, err := srv.createAccount(ctx, normalized.Username, normalized.Email, normalized.Password, entity.RoleUser)
	if err != nil {
		srv.metrics.Registration(registrationOutcome(err))

		return nil, err
	}

	srv.metrics.Registration(metrics.OutcomeSuccess)
	srv.log(ctx).Info("User registered", slog.String("userID", user.ID.String()), slog.String("username", user.Username))

	return &usecase.RegisterOutput{User: user.Profile()}, nil
}

// CreateAdmin provisions an admin account. Same rules as Register apart from the role.
func (srv *authService) CreateAdmin(ctx context.Context, input *usecase.AdminInput) (*entity.Profile, error) {
	normalized := usecase.AdminInput{}
	if input != nil {
		normalized = *input
	}
	normalized.Username = strings.TrimSpace(normalized.Username)

	if err := srv.validator.Validate(&normalized); err != nil {
		return nil, errors.WithStack(err)
	}

	user, err := srv.createAccount(ctx, normalized.Username, normalized.Email, normalized.Password, entity.RoleAdmin)
	if err != nil {
		return nil, err
	}

	srv.log(ctx).Info("Admin account created", slog.String("userID", user.ID.String()), slog.String("username", user.Username))

	return user.Profile(), nil
}

func (srv *authService) createAccount(ctx context.Context, username, email, password string, role entity.Role) (*entity.User, error) {
	_, err := srv.userRepo.FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		srv.log(ctx).Warn("Registration rejected, account exists", slog.String("username", username))

		return nil, domainerrors.ErrUserAlreadyExists.WrapMessage("username or email already taken")
	case !errors.Is(err, repository.ErrUserNotFound):
		srv.log(ctx).Error("Failed to check existing account", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to check existing account")
	}

	digest, err := srv.hash(ctx, password)
	if err != nil {
		if errors.Is(err, service.ErrPasswordTooLong) {
			return nil, domainerrors.NewValidationError(domainerrors.FieldError{
				Field:   "password",
				Message: "Password must be at most 72 bytes",
			})
		}
		srv.log(ctx).Error("Failed to hash password", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to hash password")
	}

	user := &entity.User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		Role:         role,
	}
	if err := srv.userRepo.Insert(ctx, user); err != nil {
		if errors.Is(err, domainerrors.ErrUserAlreadyExists) {
			srv.log(ctx).Warn("Registration lost a uniqueness race", slog.String("username", username))

			return nil, errors.WithStack(err)
		}
		srv.log(ctx).Error("Failed to insert user", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to insert user")
	}

	return user, nil
}

// Login verifies the credentials and issues a token. Unknown usernames and wrong
// passwords produce the same error.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	normalized := usecase.LoginInput{}
	if input != nil {
		normalized = *input
	}
	normalized.Username = strings.TrimSpace(normalized.Username)

	if err := srv.validator.Validate(&normalized); err != nil {
		srv.metrics.Login(metrics.OutcomeInvalidInput)

		return nil, errors.WithStack(err)
	}

	user, err := srv.userRepo.FindByUsername(ctx, normalized.Username)
	if errors.Is(err, repository.ErrUserNotFound) {
		if srv.equalizeLoginTiming {
			srv.dummyCheck(ctx, normalized.Password)
		}
		srv.metrics.Login(metrics.OutcomeInvalidCredentials)
		srv.log(ctx).Info("Login rejected", slog.String("reason", "unknown username"))

		return nil, errors.WithStack(domainerrors.ErrInvalidCredentials)
	}
	if err != nil {
		srv.metrics.Login(metrics.OutcomeError)
		srv.log(ctx).Error("Failed to load user for login", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to load user for login")
	}

	match, err := srv.check(ctx, normalized.Password, user.PasswordHash)
	if err != nil {
		srv.metrics.Login(metrics.OutcomeError)

		return nil, err
	}
	if !match {
		srv.metrics.Login(metrics.OutcomeInvalidCredentials)
		srv.log(ctx).Info("Login rejected", slog.String("reason", "password mismatch"), slog.String("userID", user.ID.String()))

		return nil, errors.WithStack(domainerrors.ErrInvalidCredentials)
	}

	token, expiresAt, err := srv.tokenIssuer.Issue(user.ID, user.Username, user.Role, 0)
	if err != nil {
		srv.metrics.Login(metrics.OutcomeError)
		srv.log(ctx).Error("Failed to issue token", slog.Any("error", err))

		return nil, domainerrors.ErrTokenIssueFailed.WrapMessage(err.Error())
	}

	srv.metrics.Login(metrics.OutcomeSuccess)
	srv.log(ctx).Debug("Login succeeded", slog.String("userID", user.ID.String()))

	return &usecase.LoginOutput{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Profile(),
	}, nil
}

// Profile returns the stored profile of userID.
func (srv *authService) Profile(ctx context.Context, userID uuid.UUID) (*entity.Profile, error) {
	user, err := srv.userRepo.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, domainerrors.ErrUserNotFound.WrapMessage("token subject no longer exists")
	}
	if err != nil {
		srv.log(ctx).Error("Failed to load profile", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to load profile")
	}

	return user.Profile(), nil
}

type hashResult struct {
	digest string
	err    error
}

// hash runs the hasher off the request goroutine so a cancelled request does
// not wait for it.
func (srv *authService) hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	done := make(chan hashResult, 1)
	go func() {
		digest, err := srv.hasher.Hash(password)
		done <- hashResult{digest: digest, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "hash password")
	case res := <-done:
		srv.metrics.ObserveHash(time.Since(start).Seconds())
		if res.err != nil {
			return "", errors.Wrap(res.err, "hash password")
		}

		return res.digest, nil
	}
}

func (srv *authService) check(ctx context.Context, password, digest string) (bool, error) {
	start := time.Now()
	done := make(chan bool, 1)
	go func() {
		done <- srv.hasher.Check(password, digest)
	}()

	select {
	case <-ctx.Done():
		return false, errors.Wrap(ctx.Err(), "check password")
	case match := <-done:
		srv.metrics.ObserveHash(time.Since(start).Seconds())

		return match, nil
	}
}

func (srv *authService) dummyCheck(ctx context.Context, password string) {
	done := make(chan struct{})
	go func() {
		srv.hasher.DummyCheck(password)
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrUserAlreadyExists):
		return metrics.OutcomeConflict
	case errors.Is(err, domainerrors.ErrValidationFailed):
		return metrics.OutcomeInvalidInput
	default:
		return metrics.OutcomeError
	}
}
