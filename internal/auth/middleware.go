package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/PumpFleet/internal/types"
)

const (
	usernameKey = "username"
	tokenKey    = "token"
)

// AuthMiddleware enforces a valid Bearer token and stores the username and
// raw token in the gin context.
func (s *Service) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(
				types.CodeUnauthorized, "missing or malformed authorization header", nil))
			return
		}

		claims, err := s.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(
				types.CodeUnauthorized, "invalid or expired token", nil))
			return
		}

		c.Set(usernameKey, claims.Username)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Username returns the authenticated user of the request.
func Username(c *gin.Context) string {
	return c.GetString(usernameKey)
}

// Token returns the raw bearer token of the request.
func Token(c *gin.Context) string {
	return c.GetString(tokenKey)
}
