package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/handlers"
	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/models"
)

func registerAuditRoutes(api *gin.RouterGroup, h *handlers.AuditHandler) {
	api.GET("/audit", middleware.RequireRole(models.RoleSuperAdmin), h.List)
}
