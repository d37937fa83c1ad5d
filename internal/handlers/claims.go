package handlers

import (
	stdErrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/services"
	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/response"
)

// ClaimHandler exposes the portfolio entries that verification targets.
type ClaimHandler struct {
	claims *services.ClaimService
}

func NewClaimHandler(claims *services.ClaimService) (*ClaimHandler, error) {
	if claims == nil {
		return nil, stdErrors.New("claim handler: claim service is required")
	}
	return &ClaimHandler{claims: claims}, nil
}

// POST /api/claims/:type
func (h *ClaimHandler) Create(c *gin.Context) {
	user, subjectType, ok := claimRequestContext(c)
	if !ok {
		return
	}

	var input services.ClaimInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	claim, err := h.claims.Create(requestContext(c), user.ID, subjectType, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, claim)
}

// GET /api/claims/:type
func (h *ClaimHandler) List(c *gin.Context) {
	user, subjectType, ok := claimRequestContext(c)
	if !ok {
		return
	}

	claims, err := h.claims.List(requestContext(c), user.ID, subjectType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, claims)
}

func claimRequestContext(c *gin.Context) (*models.User, models.SubjectType, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return nil, "", false
	}
	subjectType, ok := models.ParseSubjectType(c.Param("type"))
	if !ok {
		response.Error(c, errors.NewBadRequest("type must be experience, education or project"))
		return nil, "", false
	}
	return user, subjectType, true
}
