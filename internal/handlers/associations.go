package handlers

import (
	stdErrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/services"
	"github.com/charlesng35/verifolio/internal/workflow"
	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/response"
)

// AssociationHandler serves institution association requests.
type AssociationHandler struct {
	svc *services.AssociationService
}

func NewAssociationHandler(svc *services.AssociationService) (*AssociationHandler, error) {
	if svc == nil {
		return nil, stdErrors.New("association handler: association service is required")
	}
	return &AssociationHandler{svc: svc}, nil
}

type associationRequestBody struct {
	Institute     string `json:"institute" validate:"required,institute,max=200"`
	RequestedRole string `json:"requestedRole" validate:"required,oneof=STUDENT VERIFIER"`
}

// POST /associations/request
func (h *AssociationHandler) Request(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body associationRequestBody
	if !bindAndValidate(c, &body) {
		return
	}

	role, _ := models.ParseRole(body.RequestedRole)
	request, err := h.svc.Request(requestContext(c), user, body.Institute, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, request)
}

// GET /associations/my-requests
func (h *AssociationHandler) Mine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	requests, err := h.svc.ListMine(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, requests)
}

// GET /associations/pending
func (h *AssociationHandler) Pending(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	requests, err := h.svc.ListPending(requestContext(c), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, requests)
}

type associationRespondBody struct {
	Action   string `json:"action" validate:"required,oneof=approve reject"`
	Response string `json:"response" validate:"max=1000"`
}

// PUT /associations/:id/respond
func (h *AssociationHandler) Respond(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body associationRespondBody
	if !bindAndValidate(c, &body) {
		return
	}
	decision, _ := workflow.ParseDecision(body.Action)

	request, err := h.svc.Respond(requestContext(c), user, c.Param("id"), decision, body.Response)
	if err != nil {
		if workflow.IsAlreadyResolved(err) && request != nil {
			response.Success(c, http.StatusOK, transitionResponse{Request: request, AlreadyResolved: true})
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, transitionResponse{Request: request})
}
