package auth

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"rssauth/config"
	"rssauth/internal/domain/entity"
	domainerrors "rssauth/internal/domain/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test_signing_key_very_long_for_testing_0123"

func newTestTokenConfig() config.TokenConfig {
	return config.TokenConfig{
		SigningKey: testSigningKey,
		TTL:        24 * time.Hour,
		Issuer:     "rssauth-test",
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestJWTService_IssueAndVerify(t *testing.T) {
	svc, err := NewJWTService(&config.Config{Auth: &config.AuthConfig{Token: newTestTokenConfig()}})
	require.NoError(t, err)

	userID := uuid.New()
	token, expiresAt, err := svc.Issue(userID, "alice", entity.RoleUser, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, entity.RoleUser, claims.Role)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "rssauth-test", claims.Issuer)
}

func TestJWTService_CustomTTL(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, err := newJWTService(newTestTokenConfig(), fixedClock(now))
	require.NoError(t, err)

	_, expiresAt, err := svc.Issue(uuid.New(), "alice", entity.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)
	assert.Equal(t, 24*time.Hour, svc.DefaultTTL())
}

func TestJWTService_DeterministicForSameInputsAndClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, err := newJWTService(newTestTokenConfig(), fixedClock(now))
	require.NoError(t, err)

	userID := uuid.New()
	first, _, err := svc.Issue(userID, "alice", entity.RoleUser, 0)
	require.NoError(t, err)
	second, _, err := svc.Issue(userID, "alice", entity.RoleUser, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestJWTService_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-48 * time.Hour)
	issuer, err := newJWTService(newTestTokenConfig(), fixedClock(issuedAt))
	require.NoError(t, err)

	token, _, err := issuer.Issue(uuid.New(), "alice", entity.RoleUser, time.Hour)
	require.NoError(t, err)

	verifier, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	claims, err := verifier.Verify(token)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)
}

func TestJWTService_TamperedSignature(t *testing.T) {
	svc, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	token, _, err := svc.Issue(uuid.New(), "alice", entity.RoleUser, 0)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	for i := range sig {
		tampered := append([]byte(nil), sig...)
		tampered[i] ^= 0x01
		parts[2] = base64.RawURLEncoding.EncodeToString(tampered)

		_, err = svc.Verify(strings.Join(parts, "."))
		assert.ErrorIs(t, err, domainerrors.ErrTokenInvalidSignature, "byte %d", i)
	}
}

func TestJWTService_TamperedClaims(t *testing.T) {
	svc, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	token, _, err := svc.Issue(uuid.New(), "alice", entity.RoleUser, 0)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	elevated := strings.Replace(string(payload), `"role":"user"`, `"role":"admin"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(elevated))

	_, err = svc.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, domainerrors.ErrTokenInvalidSignature)
}

func TestJWTService_ExpiredAndTamperedReportsSignature(t *testing.T) {
	issuer, err := newJWTService(newTestTokenConfig(), fixedClock(time.Now().Add(-72*time.Hour)))
	require.NoError(t, err)

	token, _, err := issuer.Issue(uuid.New(), "alice", entity.RoleUser, time.Hour)
	require.NoError(t, err)

	verifier, err := newJWTService(config.TokenConfig{
		SigningKey: strings.Repeat("k", MinSigningKeyLength),
		TTL:        time.Hour,
		Issuer:     "rssauth-test",
	}, time.Now)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, domainerrors.ErrTokenInvalidSignature)
}

func TestJWTService_Malformed(t *testing.T) {
	svc, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	for _, token := range []string{"", "clearly-not-a-jwt-token-format", "a.b", "a.b.c", "....."} {
		claims, err := svc.Verify(token)
		assert.Nil(t, claims)
		assert.ErrorIs(t, err, domainerrors.ErrTokenMalformed, "token %q", token)
	}
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	svc, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	userID := uuid.New()
	claims := jwt.MapClaims{
		"userId":   userID.String(),
		"username": "mallory",
		"role":     "admin",
		"sub":      userID.String(),
		"iss":      "rssauth-test",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(unsigned)
	assert.ErrorIs(t, err, domainerrors.ErrTokenInvalidSignature)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	_, err = svc.Verify(hs512)
	assert.ErrorIs(t, err, domainerrors.ErrTokenInvalidSignature)
}

func TestJWTService_WrongIssuer(t *testing.T) {
	other := newTestTokenConfig()
	other.Issuer = "someone-else"
	issuer, err := newJWTService(other, time.Now)
	require.NoError(t, err)

	token, _, err := issuer.Issue(uuid.New(), "alice", entity.RoleUser, 0)
	require.NoError(t, err)

	verifier, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, domainerrors.ErrTokenMalformed)
}

func TestJWTService_KeyRotationInvalidatesTokens(t *testing.T) {
	oldSvc, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	token, _, err := oldSvc.Issue(uuid.New(), "alice", entity.RoleUser, 0)
	require.NoError(t, err)

	rotated := newTestTokenConfig()
	rotated.SigningKey = strings.Repeat("r", 48)
	newSvc, err := newJWTService(rotated, time.Now)
	require.NoError(t, err)

	_, err = newSvc.Verify(token)
	assert.ErrorIs(t, err, domainerrors.ErrTokenInvalidSignature)
}

func TestJWTService_SigningKeyRequired(t *testing.T) {
	tc := newTestTokenConfig()
	tc.SigningKey = ""

	svc, err := NewJWTService(&config.Config{Auth: &config.AuthConfig{Token: tc}})
	assert.Nil(t, svc)
	assert.ErrorIs(t, err, ErrSigningKeyMissing)

	svc, err = NewJWTService(&config.Config{})
	assert.Nil(t, svc)
	assert.ErrorIs(t, err, ErrSigningKeyMissing)

	tc.SigningKey = "short"
	svc, err = NewJWTService(&config.Config{Auth: &config.AuthConfig{Token: tc}})
	assert.Nil(t, svc)
	assert.ErrorIs(t, err, ErrSigningKeyTooShort)
}

func TestJWTService_ConcurrentVerify(t *testing.T) {
	svc, err := newJWTService(newTestTokenConfig(), time.Now)
	require.NoError(t, err)

	userID := uuid.New()
	token, _, err := svc.Issue(userID, "alice", entity.RoleUser, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claims, err := svc.Verify(token)
			if err == nil && claims.UserID != userID {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
