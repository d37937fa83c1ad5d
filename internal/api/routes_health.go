package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/app"
	"github.com/charlesng35/verifolio/internal/handlers"
	"github.com/charlesng35/verifolio/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		return
	}

	h := handlers.NewHealthHandler(manager)
	r.GET("/health", h.Overall)
	r.GET("/health/live", h.Liveness)
	r.GET("/health/ready", h.Readiness)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
