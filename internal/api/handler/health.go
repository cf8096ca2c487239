package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	failing := gin.H{}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			failing[hc.Name] = err.Error()
		}
	}

	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"checks": failing,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
