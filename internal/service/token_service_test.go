package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtube/user-api/internal/models"
	"github.com/streamtube/user-api/pkg/config"
)

func newTokenService(t *testing.T, cfg config.JWTConfig) *TokenService {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = "unit-test-secret"
	}
	svc, err := NewTokenService(cfg)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(config.JWTConfig{})
	require.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTokenService(t, config.JWTConfig{Issuer: "user-api", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour})

	access, expiresAt, err := svc.IssueAccess("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Verify(access, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "user-api", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	refresh, _, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	refreshClaims, err := svc.Verify(refresh, models.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeRefresh, refreshClaims.TokenType)
}

func TestTokensCarryDistinctIDs(t *testing.T) {
	svc := newTokenService(t, config.JWTConfig{})

	first, _, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)
	second, _, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	svc := newTokenService(t, config.JWTConfig{})

	access, _, err := svc.IssueAccess("user-1")
	require.NoError(t, err)
	refresh, _, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = svc.Verify(access, models.TokenTypeRefresh)
	require.Error(t, err)

	_, err = svc.Verify(refresh, models.TokenTypeAccess)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredBeyondLeeway(t *testing.T) {
	svc := newTokenService(t, config.JWTConfig{AccessTTL: time.Nanosecond, Leeway: time.Millisecond})

	access, _, err := svc.IssueAccess("user-1")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.Verify(access, models.TokenTypeAccess)
	require.Error(t, err)
}

func TestVerifyAcceptsExpiryWithinLeeway(t *testing.T) {
	svc := newTokenService(t, config.JWTConfig{AccessTTL: time.Nanosecond, Leeway: time.Hour})

	access, _, err := svc.IssueAccess("user-1")
	require.NoError(t, err)

	claims, err := svc.Verify(access, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := newTokenService(t, config.JWTConfig{})

	access, _, err := svc.IssueAccess("user-1")
	require.NoError(t, err)

	parts := strings.Split(access, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.Verify(tampered, models.TokenTypeAccess)
	require.Error(t, err)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer := newTokenService(t, config.JWTConfig{Secret: "secret-a"})
	verifier := newTokenService(t, config.JWTConfig{Secret: "secret-b"})

	access, _, err := issuer.IssueAccess("user-1")
	require.NoError(t, err)

	_, err = verifier.Verify(access, models.TokenTypeAccess)
	require.Error(t, err)
}
