package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rssauth/config"
	apimiddleware "rssauth/internal/delivery/api/middleware"
	"rssauth/internal/delivery/api/router"
	"rssauth/internal/delivery/api/router/handler"
	"rssauth/internal/delivery/api/validator"
	"rssauth/internal/domain/entity"
	"rssauth/internal/domain/service"
	"rssauth/internal/infra/auth"
	"rssauth/internal/infra/metrics"
	"rssauth/internal/infra/persistence/memory"
	"rssauth/internal/usecase/impl"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

type loginData struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      *entity.Profile `json:"user"`
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Env.ServiceName = "auth-service"
	cfg.HTTP.BasePath = "/api/auth"
	cfg.HTTP.MaxRequestBodySize = "100KB"
	cfg.Auth = &config.AuthConfig{
		Token: config.TokenConfig{
			SigningKey: testSigningKey,
			TTL:        time.Hour,
			Issuer:     "rssauth",
		},
		Hasher: config.HasherConfig{
			Algorithm:  auth.AlgorithmBcrypt,
			BcryptCost: bcrypt.MinCost,
			Argon2: config.Argon2Config{
				Memory:  8 * 1024,
				Time:    1,
				Threads: 1,
				SaltLen: 16,
				KeyLen:  32,
			},
		},
	}
	cfg.Metrics = &config.MetricsConfig{Enabled: true, Path: "/metrics"}

	return cfg
}

func newTestEcho(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher, err := auth.NewPasswordHasher(cfg)
	require.NoError(t, err)
	tokens, err := auth.NewJWTService(cfg)
	require.NoError(t, err)
	recorder := metrics.NewRecorder()

	uc := impl.NewAuthService(impl.AuthServiceParams{
		UserRepo:     memory.NewUserRepository(),
		Hasher:       hasher,
		TokenService: tokens,
		Validator:    validator.NewInputValidator(),
		Metrics:      recorder,
		Config:       cfg,
		Logger:       logger,
	})

	e, err := newEcho(cfg, logger, router.RouterParams{
		AuthHandler:   handler.NewAuthHandler(uc, logger),
		HealthHandler: handler.NewHealthHandler(cfg),
		AuthMiddleware: apimiddleware.NewAuthMiddleware(apimiddleware.AuthMiddlewareParams{
			TokenService: tokens,
			Metrics:      recorder,
			Logger:       logger,
		}),
		Metrics: recorder,
		Config:  cfg,
	})
	require.NoError(t, err)

	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}

	return rec, env
}

func registerAlice(t *testing.T, e *echo.Echo) {
	t.Helper()

	rec, _ := do(t, e, http.MethodPost, "/api/auth/register",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func loginAlice(t *testing.T, e *echo.Echo) loginData {
	t.Helper()

	rec, env := do(t, e, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out loginData
	require.NoError(t, json.Unmarshal(env.Data, &out))

	return out
}

func TestServer_AliceScenario(t *testing.T) {
	e := newTestEcho(t, newTestConfig())

	rec, env := do(t, e, http.MethodPost, "/api/auth/register",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret1")
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "hash")

	var profile entity.Profile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, entity.RoleUser, profile.Role)
	assert.NotEqual(t, uuid.Nil, profile.ID)

	login := loginAlice(t, e)
	assert.NotEmpty(t, login.Token)
	assert.True(t, login.ExpiresAt.After(time.Now()))
	require.NotNil(t, login.User)
	assert.Equal(t, profile.ID, login.User.ID)

	rec, env = do(t, e, http.MethodGet, "/api/auth/verify", "", "Bearer "+login.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var identity service.Identity
	require.NoError(t, json.Unmarshal(env.Data, &identity))
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, entity.RoleUser, identity.Role)
	assert.Equal(t, profile.ID, identity.UserID)

	rec, env = do(t, e, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestServer_LoginFailuresAreIndistinguishable(t *testing.T) {
	e := newTestEcho(t, newTestConfig())
	registerAlice(t, e)

	wrongPass, wrongPassEnv := do(t, e, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrong"}`, "")
	unknown, unknownEnv := do(t, e, http.MethodPost, "/api/auth/login", `{"username":"mallory","password":"wrong"}`, "")

	assert.Equal(t, wrongPass.Code, unknown.Code)
	require.NotNil(t, wrongPassEnv.Error)
	require.NotNil(t, unknownEnv.Error)
	assert.Equal(t, wrongPassEnv.Error.Code, unknownEnv.Error.Code)
	assert.Equal(t, wrongPassEnv.Error.Message, unknownEnv.Error.Message)
	assert.Empty(t, unknownEnv.Error.Details)
}

func TestServer_RegisterConflict(t *testing.T) {
	e := newTestEcho(t, newTestConfig())
	registerAlice(t, e)

	tests := []struct {
		name string
		body string
	}{
		{name: "same username", body: `{"username":"alice","email":"other@example.com","password":"secret1"}`},
		{name: "same email", body: `{"username":"alice2","email":"alice@example.com","password":"secret1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, e, http.MethodPost, "/api/auth/register", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "USER_ALREADY_EXISTS", env.Error.Code)
		})
	}
}

func TestServer_RegisterValidation(t *testing.T) {
	e := newTestEcho(t, newTestConfig())

	rec, env := do(t, e, http.MethodPost, "/api/auth/register", `{}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	var fields []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Error.Details, &fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	assert.ElementsMatch(t, []string{"username", "email", "password"}, names)
}

func TestServer_MalformedBody(t *testing.T) {
	e := newTestEcho(t, newTestConfig())

	rec, env := do(t, e, http.MethodPost, "/api/auth/login", `{"username":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestServer_VerifyRejections(t *testing.T) {
	cfg := newTestConfig()
	e := newTestEcho(t, cfg)

	otherCfg := newTestConfig()
	otherCfg.Auth.Token.SigningKey = strings.Repeat("z", 32)
	other, err := auth.NewJWTService(otherCfg)
	require.NoError(t, err)
	foreign, _, err := other.Issue(uuid.New(), "alice", entity.RoleUser, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "no header", header: "", code: "TOKEN_MISSING"},
		{name: "scheme only", header: "Bearer", code: "TOKEN_MISSING"},
		{name: "wrong scheme", header: "Basic YWxpY2U6c2VjcmV0MQ==", code: "TOKEN_MALFORMED"},
		{name: "garbage", header: "Bearer not-a-token", code: "TOKEN_MALFORMED"},
		{name: "foreign key", header: "Bearer " + foreign, code: "TOKEN_INVALID_SIGNATURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, e, http.MethodGet, "/api/auth/verify", "", tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Empty(t, env.Error.Details)
		})
	}
}

func TestServer_Profile(t *testing.T) {
	e := newTestEcho(t, newTestConfig())
	registerAlice(t, e)
	login := loginAlice(t, e)

	rec, env := do(t, e, http.MethodGet, "/api/auth/profile", "", "Bearer "+login.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var profile entity.Profile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.False(t, profile.CreatedAt.IsZero())

	rec, _ = do(t, e, http.MethodGet, "/api/auth/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_ProfileOfVanishedUser(t *testing.T) {
	cfg := newTestConfig()
	e := newTestEcho(t, cfg)

	tokens, err := auth.NewJWTService(cfg)
	require.NoError(t, err)
	token, _, err := tokens.Issue(uuid.New(), "ghost", entity.RoleUser, 0)
	require.NoError(t, err)

	rec, env := do(t, e, http.MethodGet, "/api/auth/profile", "", "Bearer "+token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "USER_NOT_FOUND", env.Error.Code)
}

func TestServer_Health(t *testing.T) {
	e := newTestEcho(t, newTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "auth-service", body["service"])
}

func TestServer_Metrics(t *testing.T) {
	e := newTestEcho(t, newTestConfig())
	registerAlice(t, e)
	loginAlice(t, e)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rssauth_registrations_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), `rssauth_logins_total{outcome="success"} 1`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := newTestConfig()
	cfg.Metrics.Enabled = false
	e := newTestEcho(t, cfg)

	rec, env := do(t, e, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestServer_RequestIDPropagation(t *testing.T) {
	e := newTestEcho(t, newTestConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-123", env.Meta.RequestID)
}

func TestServer_BodyTooLarge(t *testing.T) {
	cfg := newTestConfig()
	cfg.HTTP.MaxRequestBodySize = "1K"
	e := newTestEcho(t, cfg)

	body := `{"username":"` + strings.Repeat("a", 4096) + `","password":"secret1"}`
	rec, env := do(t, e, http.MethodPost, "/api/auth/login", body, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", env.Error.Code)
}

func TestNewEcho_RejectsRelativeBasePath(t *testing.T) {
	cfg := newTestConfig()
	cfg.HTTP.BasePath = "api/auth"

	_, err := newEcho(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), router.RouterParams{Config: cfg})
	require.Error(t, err)
}

func TestNewEcho_LeavesValidationToUsecases(t *testing.T) {
	e := newTestEcho(t, newTestConfig())

	assert.Nil(t, e.Validator)

	rec, env := do(t, e, http.MethodPost, "/api/auth/register", `{"username":"al","email":"bad","password":"123"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, string(env.Error.Details), "Invalid email")
}
