package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/broker/internal/middleware"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.2.0"
	// HealthCheckTimeout is the timeout for data source health checks
	HealthCheckTimeout = 2 * time.Second
)

// Pinger reports whether the data source is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check and readiness endpoints.
type HealthHandler struct {
	source     Pinger
	startTime  time.Time
	env        string
	dataSource string
}

// NewHealthHandler creates a new HealthHandler instance.
// dataSource names the configured backend (csv or postgres) for the info endpoint.
func NewHealthHandler(source Pinger, env, dataSource string) *HealthHandler {
	return &HealthHandler{
		source:     source,
		startTime:  time.Now(),
		env:        env,
		dataSource: dataSource,
	}
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status     string `json:"status"`
	DataSource string `json:"dataSource"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
	DataSource  string `json:"dataSource"`
	Uptime      string `json:"uptime"`
}

// Health handles GET /health.
// Liveness only; dependencies are not checked.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready.
// Returns 200 if the data source answers a ping, 503 otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
	defer cancel()

	if err := h.source.Ping(ctx); err != nil {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Data source health check failed", err, map[string]interface{}{
				"data_source": h.dataSource,
				"timeout":     HealthCheckTimeout.String(),
			})
		}

		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status:     "not_ready",
			DataSource: "unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, ReadyResponse{
		Status:     "ready",
		DataSource: "available",
	})
}

// Info handles GET /api/v1/info.
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{
		Version:     APIVersion,
		Environment: h.env,
		DataSource:  h.dataSource,
		Uptime:      formatUptime(time.Since(h.startTime)),
	})
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
