package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck checks one dependency
type HealthCheck struct {
	Name string
	// Check returns nil when the dependency is usable
	Check func(ctx context.Context) error
	// Optional failures are reported without failing the check
	Optional bool
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	version string
	checks  []HealthCheck
	timeout time.Duration
}

// NewHealthHandler creates a health handler
func NewHealthHandler(version string, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		version: version,
		checks:  checks,
		timeout: 3 * time.Second,
	}
}

// Health runs every check. Any failing required check answers 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	healthy := true
	services := make(map[string]interface{}, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			services[check.Name] = map[string]interface{}{
				"healthy":  false,
				"optional": check.Optional,
				"error":    err.Error(),
			}
			if !check.Optional {
				healthy = false
			}
			continue
		}
		services[check.Name] = map[string]interface{}{
			"healthy": true,
			"status":  "connected",
		}
	}

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   h.version,
		"services":  services,
	}
	if !healthy {
		health["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}

// Ping answers liveness without touching dependencies
func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}
