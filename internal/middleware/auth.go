package middleware

import (
	"context"
	"net/http"
	"strings"

	"layover-match/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey    = "user_id"
	TokenKey     = "token"
	ExpiresAtKey = "token_expires_at"
)

type Authenticator interface {
	CurrentSession(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthRequired accepts a bearer token, or a "token" query parameter for
// websocket upgrades where clients cannot set headers.
func AuthRequired(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				return
			}

			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
				return
			}
		}

		claims, err := authenticator.CurrentSession(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(TokenKey, tokenString)
		if claims.ExpiresAt != nil {
			c.Set(ExpiresAtKey, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}
