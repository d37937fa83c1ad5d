package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/handlers"
	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/models"
)

func registerVerificationRoutes(engine *gin.Engine, api *gin.RouterGroup, requireAuth gin.HandlerFunc, h *handlers.VerificationHandler) {
	verify := engine.Group("/verify")
	{
		verify.POST("/request/:type/:id", requireAuth, middleware.RequireRole(models.RoleStudent), h.Request)

		// capability routes; the token is the credential
		verify.GET("/:token", h.Lookup)
		verify.POST("/:token/approve", h.Approve)
		verify.POST("/:token/reject", h.Reject)
	}

	verifications := api.Group("/verifications")
	{
		verifications.GET("/mine", h.Mine)
		verifications.GET("/pending", h.Pending)
		verifications.PUT("/:id/respond", h.Respond)
	}
}

func registerAssociationRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, h *handlers.AssociationHandler) {
	associations := engine.Group("/associations")
	associations.Use(requireAuth)
	{
		associations.POST("/request", middleware.RequireRole(models.RoleStudent, models.RoleVerifier), h.Request)
		associations.GET("/my-requests", h.Mine)
		associations.GET("/pending", middleware.RequireRole(models.RoleVerifier), h.Pending)
		associations.PUT("/:id/respond", middleware.RequireRole(models.RoleVerifier), h.Respond)
	}
}
