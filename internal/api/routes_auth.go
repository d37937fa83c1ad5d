package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, h *handlers.AuthHandler) {
	auth := engine.Group("/api/auth")
	{
		auth.GET("/google/login", h.GoogleLogin)
		auth.GET("/google/redirect", h.GoogleRedirect)
		auth.POST("/google/callback", h.GoogleCallback)
		auth.POST("/logout", h.Logout)
	}

	engine.POST("/auth/validate", h.Validate)

	api.GET("/auth/me", h.Me)
}
