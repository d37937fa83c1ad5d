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

// ProfileHandler completes profile setup for users without a role.
type ProfileHandler struct {
	users *services.UserService
}

func NewProfileHandler(users *services.UserService) (*ProfileHandler, error) {
	if users == nil {
		return nil, stdErrors.New("profile handler: user service is required")
	}
	return &ProfileHandler{users: users}, nil
}

type chooseRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=STUDENT VERIFIER"`
}

// PUT /api/profile/role
func (h *ProfileHandler) ChooseRole(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req chooseRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, _ := models.ParseRole(req.Role)
	updated, err := h.users.ChooseRole(requestContext(c), user.ID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated.Identity())
}
