package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/handlers"
	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/models"
)

func registerProfileRoutes(api *gin.RouterGroup, profile *handlers.ProfileHandler, claims *handlers.ClaimHandler) {
	api.PUT("/profile/role", profile.ChooseRole)

	group := api.Group("/claims")
	group.Use(middleware.RequireRole(models.RoleStudent))
	{
		group.GET("/:type", claims.List)
		group.POST("/:type", claims.Create)
	}
}
