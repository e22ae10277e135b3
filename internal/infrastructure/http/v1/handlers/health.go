// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"codeart/internal/core/datacontext"
)

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	app     string
	version string
	pool    *datacontext.Pool
	checks  map[string]Check
	info    func() map[string]any
}

// NewHealthHandler creates a new health handler. checks are run by Ready;
// info, if set, contributes extra fields to Info.
func NewHealthHandler(app, version string, pool *datacontext.Pool, checks map[string]Check, info func() map[string]any) *HealthHandler {
	return &HealthHandler{app: app, version: version, pool: pool, checks: checks, info: info}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			results[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		results[name] = "healthy"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": results,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": results,
	})
}

// Info returns application information with data context pool stats.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":          h.app,
		"version":      h.version,
		"data_context": h.pool.Stats(),
		"actions":      datacontext.ActionStats(),
	}
	if h.info != nil {
		for k, v := range h.info() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}
