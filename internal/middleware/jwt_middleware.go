package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/catalog_api/internal/utils"
)

// Context keys set by JWTMiddleware.
const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

type JWTMiddleware struct {
	rateLimiter *InvalidAuthRateLimiter
}

// NewJWTMiddleware creates the admin JWT middleware. Invalid tokens count
// against rateLimiter when it is non-nil.
func NewJWTMiddleware(rateLimiter *InvalidAuthRateLimiter) *JWTMiddleware {
	return &JWTMiddleware{rateLimiter: rateLimiter}
}

func (m *JWTMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.handleAuthError(c, "UNAUTHORIZED", "Missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.handleAuthError(c, "UNAUTHORIZED", "Invalid authorization header")
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			m.handleAuthError(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, code, message string) {
	if m.rateLimiter != nil && !m.rateLimiter.Allow(c.ClientIP()) {
		utils.Error(c, 429, "TOO_MANY_REQUESTS", "Too many invalid authentication attempts")
		c.Abort()
		return
	}

	utils.Error(c, 401, code, message)
	c.Abort()
}

// AdminUserID returns the authenticated admin id, or 0.
func AdminUserID(c *gin.Context) int {
	return c.GetInt(ContextUserID)
}
