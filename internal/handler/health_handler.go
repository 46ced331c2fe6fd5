package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/catalog_api/internal/utils"
)

var startTime = time.Now()

// Pinger is a dependency the health check probes.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthHandler provides health endpoint.
type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler creates a new HealthHandler probing deps by name.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// GetHealth responds with service and dependency status. Any unreachable
// dependency makes the response 503.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	healthy := true
	deps := gin.H{}
	for name, p := range h.deps {
		if err := p.PingContext(ctx); err != nil {
			healthy = false
			deps[name] = gin.H{"status": "disconnected", "error": err.Error()}
			continue
		}
		deps[name] = gin.H{"status": "connected"}
	}

	data := gin.H{
		"status":       "healthy",
		"version":      "1.0.0",
		"uptime":       int(time.Since(startTime).Seconds()),
		"dependencies": deps,
	}
	if !healthy {
		data["status"] = "degraded"
		utils.ErrorWithData(c, 503, "SERVICE_DEGRADED", "One or more dependencies are unavailable", data)
		return
	}
	utils.Success(c, 200, "Service is healthy", data)
}
