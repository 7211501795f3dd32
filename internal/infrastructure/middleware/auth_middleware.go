package middleware

import (
	"net/http"
	"strings"

	"studymesh/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID      = "user_id"
	ContextDisplayName = "display_name"
	ContextGuest       = "guest"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware requires a valid bearer token and stores the resolved user
// in the request context.
func AuthMiddleware(auth ports.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		user, err := auth.Current(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextDisplayName, user.DisplayName)
		c.Set(ContextGuest, user.Guest)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the caller when a token is present and
// falls back to a guest identity otherwise.
func OptionalAuthMiddleware(auth ports.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := bearerToken(c)

		user, err := auth.Current(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextDisplayName, user.DisplayName)
		c.Set(ContextGuest, user.Guest)
		c.Next()
	}
}
