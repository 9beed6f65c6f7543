package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	deliverycontext "rssauth/internal/delivery/context"
	"rssauth/internal/domain/entity"
	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/domain/service"
	"rssauth/internal/infra/metrics"
	mockservice "rssauth/internal/mocks/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthMiddleware(t *testing.T) (*AuthMiddleware, *mockservice.MockTokenService) {
	t.Helper()

	tokens := mockservice.NewMockTokenService(t)

	return NewAuthMiddleware(AuthMiddlewareParams{
		TokenService: tokens,
		Metrics:      metrics.NewRecorder(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), tokens
}

func testClaims(role entity.Role) *service.Claims {
	return &service.Claims{
		UserID:   uuid.New(),
		Username: "alice",
		Role:     role,
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "surrounding spaces", header: "  Bearer   abc  ", want: "abc"},
		{name: "empty", header: "", wantErr: domainerrors.ErrTokenMissing},
		{name: "scheme only", header: "Bearer", wantErr: domainerrors.ErrTokenMissing},
		{name: "scheme and space", header: "Bearer   ", wantErr: domainerrors.ErrTokenMissing},
		{name: "basic", header: "Basic abc", wantErr: domainerrors.ErrTokenMalformed},
		{name: "token without scheme", header: "abc.def.ghi", wantErr: domainerrors.ErrTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	m, tokens := newTestAuthMiddleware(t)
	claims := testClaims(entity.RoleUser)
	tokens.EXPECT().Verify("good").Return(claims, nil).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/verify", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *service.Identity
	err := m.Authenticate(func(c echo.Context) error {
		identity, ok := deliverycontext.GetIdentity(c)
		require.True(t, ok)
		fromCtx, ok := deliverycontext.IdentityFromContext(c.Request().Context())
		require.True(t, ok)
		assert.Equal(t, identity, fromCtx)
		seen = identity

		return c.NoContent(http.StatusOK)
	})(c)

	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, claims.UserID, seen.UserID)
	assert.Equal(t, "alice", seen.Username)
}

func TestAuthMiddleware_AuthenticatePropagatesVerifierError(t *testing.T) {
	m, tokens := newTestAuthMiddleware(t)
	tokens.EXPECT().Verify("old").Return(nil, domainerrors.ErrTokenExpired).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/verify", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer old")
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := m.Authenticate(func(echo.Context) error {
		called = true

		return nil
	})(c)

	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)
	assert.False(t, called)
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	m, _ := newTestAuthMiddleware(t)
	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	t.Run("matching role", func(t *testing.T) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		deliverycontext.SetIdentity(c, testClaims(entity.RoleAdmin).Identity())

		require.NoError(t, m.RequireRole(entity.RoleAdmin)(next)(c))
	})

	t.Run("other role", func(t *testing.T) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		deliverycontext.SetIdentity(c, testClaims(entity.RoleUser).Identity())

		err := m.RequireRole(entity.RoleAdmin)(next)(c)
		assert.ErrorIs(t, err, domainerrors.ErrForbidden)
	})

	t.Run("no identity", func(t *testing.T) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

		err := m.RequireRole(entity.RoleAdmin)(next)(c)
		assert.ErrorIs(t, err, domainerrors.ErrTokenMissing)
	})
}

func TestAuthMiddleware_RequireBearer(t *testing.T) {
	m, tokens := newTestAuthMiddleware(t)
	claims := testClaims(entity.RoleUser)
	tokens.EXPECT().Verify("good").Return(claims, nil).Once()
	tokens.EXPECT().Verify("forged").Return(nil, domainerrors.ErrTokenInvalidSignature).Once()

	protected := m.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := deliverycontext.IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}
		_, _ = io.WriteString(w, identity.Username)
	}))

	tests := []struct {
		name     string
		header   string
		status   int
		wantCode string
	}{
		{name: "valid token", header: "Bearer good", status: http.StatusOK},
		{name: "forged token", header: "Bearer forged", status: http.StatusUnauthorized, wantCode: "TOKEN_INVALID_SIGNATURE"},
		{name: "missing header", header: "", status: http.StatusUnauthorized, wantCode: "TOKEN_MISSING"},
		{name: "wrong scheme", header: "Token good", status: http.StatusUnauthorized, wantCode: "TOKEN_MALFORMED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/feeds", nil)
			req.Header.Set(deliverycontext.HeaderXRequestID, "req-1")
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()

			protected.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.wantCode == "" {
				assert.Equal(t, "alice", rec.Body.String())

				return
			}

			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
				Meta struct {
					RequestID string `json:"request_id"`
				} `json:"meta"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
			assert.Equal(t, "req-1", body.Meta.RequestID)
		})
	}
}
