package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/streamtube/user-api/internal/models"
	"github.com/streamtube/user-api/internal/service"
	appErrors "github.com/streamtube/user-api/pkg/errors"
	"github.com/streamtube/user-api/pkg/response"
)

// ContextUserKey is the gin context key storing the verified session claims.
const ContextUserKey = "currentUser"

// AccessTokenCookie is the cookie consulted when no Authorization header is set.
const AccessTokenCookie = "access_token"

// JWT protects routes by requiring a valid access token, taken from the
// Authorization header or, failing that, the access_token cookie. Every
// rejection is a plain UNAUTHORIZED; callers cannot tell a missing token from
// an expired or forged one.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := authService.VerifyAccess(token)
		if err != nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when a valid token is present but never blocks.
func OptionalJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := authService.VerifyAccess(token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return parts[1]
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// CurrentClaims extracts the verified claims set by JWT. The second return is
// false on routes that were not guarded.
func CurrentClaims(c *gin.Context) (*models.SessionClaims, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.SessionClaims)
	return claims, ok
}
