package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modulearn/modulearn-api/internal/service"
	"github.com/modulearn/modulearn-api/pkg/response"
)

// HealthHandler exposes liveness, readiness and the alert log.
type HealthHandler struct {
	health *service.HealthService
}

// NewHealthHandler constructs handler.
func NewHealthHandler(health *service.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

// Live godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /healthz [get]
func (h *HealthHandler) Live(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"status": "ok"}, nil)
}

// Ready godoc
// @Summary Readiness probe
// @Description Aggregate readiness bit only; unhealthy maps to 503
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /readyz [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.health.Last(c.Request.Context())
	status := http.StatusOK
	if report.Status == service.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	// Per-dependency detail carries probe error strings and stays on the
	// admin surface; the public bit is just up or not.
	response.JSON(c, status, gin.H{"status": report.Status}, nil)
}

// Report godoc
// @Summary Dependency health detail
// @Description Latest dependency sweep with per-component latency and errors
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/health [get]
func (h *HealthHandler) Report(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.health.Last(c.Request.Context()), nil)
}

// Alerts godoc
// @Summary Recent operational alerts
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/alerts [get]
func (h *HealthHandler) Alerts(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.health.Alerts(), nil)
}
