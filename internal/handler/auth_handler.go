package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/catalog_api/internal/middleware"
	"github.com/GTDGit/catalog_api/internal/service"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// Authenticator logs admins in.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
}

type AuthHandler struct {
	authService Authenticator
	rateLimiter *middleware.InvalidAuthRateLimiter
}

// NewAuthHandler creates an AuthHandler. Failed logins count against
// rateLimiter per client IP.
func NewAuthHandler(authService Authenticator, rateLimiter *middleware.InvalidAuthRateLimiter) *AuthHandler {
	return &AuthHandler{authService: authService, rateLimiter: rateLimiter}
}

func (h *AuthHandler) Login(c *gin.Context) {
	ip := c.ClientIP()
	if h.rateLimiter.Blocked(ip) {
		utils.Error(c, 429, "TOO_MANY_REQUESTS", "Too many failed login attempts")
		return
	}

	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		h.rateLimiter.Reset(ip)
		utils.Success(c, 200, "Login successful", res)
	case errors.Is(err, utils.ErrInvalidCredentials):
		h.rateLimiter.Allow(ip)
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, utils.ErrAccountInactive):
		utils.Error(c, 403, "ACCOUNT_INACTIVE", "Account is inactive")
	default:
		respondServiceError(c, err, "Login failed")
	}
}
