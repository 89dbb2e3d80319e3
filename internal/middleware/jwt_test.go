package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtube/user-api/internal/service"
	"github.com/streamtube/user-api/pkg/config"
)

func newGuardedRouter(t *testing.T) (*gin.Engine, *service.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := service.NewTokenService(config.JWTConfig{Secret: "middleware-test", AccessTTL: time.Hour})
	require.NoError(t, err)
	authService := service.NewAuthService(nil, tokens, nil, nil, nil, nil, nil, nil)

	r := gin.New()
	r.GET("/protected", JWT(authService), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	return r, tokens
}

func TestJWTMissingToken(t *testing.T) {
	r, _ := newGuardedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMalformedHeader(t *testing.T) {
	r, tokens := newGuardedRouter(t)
	access, _, err := tokens.IssueAccess("user-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token "+access)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTBearerToken(t *testing.T) {
	r, tokens := newGuardedRouter(t)
	access, _, err := tokens.IssueAccess("user-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestJWTCookieFallback(t *testing.T) {
	r, tokens := newGuardedRouter(t)
	access, _, err := tokens.IssueAccess("user-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTRejectsRefreshToken(t *testing.T) {
	r, tokens := newGuardedRouter(t)
	refresh, _, err := tokens.IssueRefresh("user-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := service.NewTokenService(config.JWTConfig{Secret: "middleware-test", AccessTTL: time.Hour})
	require.NoError(t, err)
	authService := service.NewAuthService(nil, tokens, nil, nil, nil, nil, nil, nil)

	r := gin.New()
	r.GET("/open", OptionalJWT(authService), func(c *gin.Context) {
		if claims, ok := CurrentClaims(c); ok {
			c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": nil})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	access, _, err := tokens.IssueAccess("user-1")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}
