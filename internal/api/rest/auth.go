package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/auth"
	"github.com/KevinKickass/PumpFleet/internal/types"
	"github.com/KevinKickass/PumpFleet/internal/validation"
)

type LoginResponse struct {
	Token     string `json:"token"`
	User      string `json:"user"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// POST /api/v1/auth/login
func (s *Server) login(c *gin.Context) {
	var req validation.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, types.CodeAuthBadRequest, err)
		return
	}

	res, err := s.authService.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthorized, auth.InvalidCredentialsMessage, nil))
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, types.NewErrorResponse(types.CodeAuthBadRequest, "Login cancelled", nil))
		return
	case err != nil:
		s.logger.Error("Login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeInternal, "Login failed", nil))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     res.Token,
		User:      res.User,
		TokenType: "Bearer",
		ExpiresIn: int(time.Until(res.ExpiresAt).Seconds()),
	})
}

// POST /api/v1/auth/logout
// Revokes the token and drops the user's working collection.
func (s *Server) logout(c *gin.Context) {
	if err := s.authService.Logout(auth.Token(c)); err != nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthorized, "Invalid or expired token", nil))
		return
	}
	s.registry.Release(auth.Username(c))

	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// GET /api/v1/auth/me
func (s *Server) getCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": auth.Username(c)})
}

// respondBindError answers a failed ShouldBindJSON with per-field messages
// when validation failed, or a generic body error otherwise.
func respondBindError(c *gin.Context, code string, err error) {
	if fields, ok := validation.FromError(err); ok {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(code, "Validation failed", fields))
		return
	}
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(code, "Invalid request body", err.Error()))
}
