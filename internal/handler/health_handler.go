package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/studio-booking/internal/dto"
)

// HealthChecker is implemented by the Postgres and Redis clients
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	service string
	checks  map[string]HealthChecker
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are reported as not configured.
func NewHealthHandler(service string, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

// Health returns a simple health check (liveness probe)
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:  "healthy",
		Service: h.service,
	})
}

// Ready returns a readiness check (readiness probe)
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	allHealthy := true

	for name, checker := range h.checks {
		if checker == nil {
			results[name] = "not configured"
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		results[name] = "healthy"
	}

	resp := dto.HealthResponse{Service: h.service, Checks: results}
	if allHealthy {
		resp.Status = "ready"
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Status = "not ready"
	c.JSON(http.StatusServiceUnavailable, resp)
}
