package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"rssauth/internal/delivery/api/response"
	deliverycontext "rssauth/internal/delivery/context"
	"rssauth/internal/domain/entity"
	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/domain/service"
	"rssauth/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const bearerScheme = "Bearer"

// AuthMiddleware verifies bearer tokens and attaches the caller identity.
// Handlers behind it never see an unverified request.
type AuthMiddleware struct {
	verifier service.TokenVerifier
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// AuthMiddlewareParams holds dependencies for AuthMiddleware, injected by Fx.
type AuthMiddlewareParams struct {
	fx.In

	TokenService service.TokenService
	Metrics      *metrics.Recorder `optional:"true"`
	Logger       *slog.Logger
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(params AuthMiddlewareParams) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: params.TokenService,
		metrics:  params.Metrics,
		logger:   params.Logger,
	}
}

// Authenticate is the echo form of the bearer check.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := m.authenticate(c.Request())
		if err != nil {
			return err
		}

		deliverycontext.SetIdentity(c, identity)

		return next(c)
	}
}

// RequireRole rejects callers without the given role. It must be used AFTER Authenticate.
func (m *AuthMiddleware) RequireRole(role entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := deliverycontext.GetIdentity(c)
			if !ok {
				return errors.WithStack(domainerrors.ErrTokenMissing)
			}
			if identity.Role != role {
				return domainerrors.ErrForbidden.WrapMessage("requires role " + role.String())
			}

			return next(c)
		}
	}
}

// RequireBearer is the net/http form of the bearer check, for services that
// share the signing key but not the echo stack.
func (m *AuthMiddleware) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.authenticate(r)
		if err != nil {
			writePlainError(w, r, err)

			return
		}

		next.ServeHTTP(w, r.WithContext(deliverycontext.WithIdentity(r.Context(), identity)))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*service.Identity, error) {
	token, err := bearerToken(r.Header.Get(echo.HeaderAuthorization))
	if err != nil {
		m.metrics.Verification(verificationOutcome(err))

		return nil, err
	}

	claims, err := m.verifier.Verify(token)
	if err != nil {
		m.metrics.Verification(verificationOutcome(err))
		deliverycontext.GetLoggerOrDefault(r.Context(), m.logger).
			Debug("Token rejected", slog.String("reason", err.Error()))

		return nil, errors.WithStack(err)
	}

	m.metrics.Verification(metrics.OutcomeSuccess)

	return claims.Identity(), nil
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.WithStack(domainerrors.ErrTokenMissing)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", domainerrors.ErrTokenMalformed.WrapMessage("authorization scheme must be Bearer")
	}

	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", errors.WithStack(domainerrors.ErrTokenMissing)
	}

	return token, nil
}

func verificationOutcome(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrTokenMissing):
		return metrics.OutcomeMissing
	case errors.Is(err, domainerrors.ErrTokenInvalidSignature):
		return metrics.OutcomeInvalidSignature
	case errors.Is(err, domainerrors.ErrTokenExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, domainerrors.ErrTokenMalformed):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}

func writePlainError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := domainerrors.AppError(domainerrors.ErrTokenMalformed)
	_ = errors.As(err, &appErr)

	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w.WriteHeader(appErr.HTTPCode())
	_ = json.NewEncoder(w).Encode(response.ErrorResponse{
		Error: &response.ErrorInfo{
			Code:    appErr.ErrorCode(),
			Message: appErr.Message(),
		},
		Meta: &response.MetaInfo{
			RequestID: r.Header.Get(deliverycontext.HeaderXRequestID),
		},
	})
}
