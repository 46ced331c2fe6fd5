package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/catalog_api/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(limiter *InvalidAuthRateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/admin", NewJWTMiddleware(limiter).Handle(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": AdminUserID(c), "email": c.GetString(ContextEmail)})
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	utils.SetJWTSecret("middleware-secret", time.Hour)
	token, err := utils.GenerateJWT(42, "ops@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}

	r := protectedRouter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"userId":42,"email":"ops@example.com"}`, w.Body.String())
			}
		})
	}
}

func TestJWTMiddleware_RateLimitsInvalidTokens(t *testing.T) {
	limiter := NewInvalidAuthRateLimiter(2, time.Minute)
	defer limiter.Stop()
	r := protectedRouter(limiter)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer junk")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{401, 401, 429}, codes)
}

func TestInvalidAuthRateLimiter_Window(t *testing.T) {
	limiter := NewInvalidAuthRateLimiter(1, time.Minute)
	defer limiter.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.False(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Blocked("1.2.3.4"))
	assert.True(t, limiter.Allow("5.6.7.8"))

	now = now.Add(2 * time.Minute)
	assert.False(t, limiter.Blocked("1.2.3.4"))
	assert.True(t, limiter.Allow("1.2.3.4"))

	limiter.Reset("1.2.3.4")
	assert.True(t, limiter.Allow("1.2.3.4"))
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"admin.example.com", "localhost:3000"}))
	r.GET("/v1/products", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name    string
		method  string
		origin  string
		allowed string
		status  int
	}{
		{"allowed origin", http.MethodGet, "https://admin.example.com", "https://admin.example.com", http.StatusOK},
		{"default port stripped", http.MethodGet, "https://admin.example.com:443", "https://admin.example.com:443", http.StatusOK},
		{"dev origin", http.MethodGet, "http://localhost:3000", "http://localhost:3000", http.StatusOK},
		{"foreign origin", http.MethodGet, "https://evil.example.net", "", http.StatusOK},
		{"preflight", http.MethodOptions, "https://admin.example.com", "https://admin.example.com", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/products", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.allowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
