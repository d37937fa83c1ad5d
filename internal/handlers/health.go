package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/monitoring"
)

const healthTimeout = 5 * time.Second

// HealthHandler serves liveness and readiness reports.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler wraps manager; a nil manager reports healthy.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	return &HealthHandler{manager: manager}
}

// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	h.write(c, h.manager.Evaluate)
}

// GET /health/live
func (h *HealthHandler) Liveness(c *gin.Context) {
	h.write(c, h.manager.EvaluateLiveness)
}

// GET /health/ready
func (h *HealthHandler) Readiness(c *gin.Context) {
	h.write(c, h.manager.EvaluateReadiness)
}

func (h *HealthHandler) write(c *gin.Context, evaluate func(context.Context) monitoring.HealthReport) {
	ctx, cancel := context.WithTimeout(requestContext(c), healthTimeout)
	defer cancel()

	report := evaluate(ctx)
	status := http.StatusOK
	if report.Status == monitoring.StatusDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success": report.Status != monitoring.StatusDown,
		"data":    report,
	})
}
