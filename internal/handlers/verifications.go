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

// VerificationHandler serves the content verification workflow. Link
// holders act through the token routes without signing in.
type VerificationHandler struct {
	svc   *services.VerificationService
	authn *middleware.Authenticator
}

func NewVerificationHandler(svc *services.VerificationService, authn *middleware.Authenticator) (*VerificationHandler, error) {
	if svc == nil {
		return nil, stdErrors.New("verification handler: verification service is required")
	}
	return &VerificationHandler{svc: svc, authn: authn}, nil
}

type verificationRequestBody struct {
	VerifierEmail string `json:"verifierEmail" validate:"required,email"`
}

type issuedResponse struct {
	Request *models.VerificationRequest `json:"request"`
	Link    string                      `json:"link"`
	Resent  bool                        `json:"resent"`
}

// POST /verify/request/:type/:id
func (h *VerificationHandler) Request(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	subjectType, ok := models.ParseSubjectType(c.Param("type"))
	if !ok {
		response.Error(c, errors.NewBadRequest("type must be experience, education or project"))
		return
	}

	var body verificationRequestBody
	if !bindAndValidate(c, &body) {
		return
	}

	issued, err := h.svc.Create(requestContext(c), user, subjectType, c.Param("id"), body.VerifierEmail)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if issued.Resent {
		status = http.StatusOK
	}
	response.Success(c, status, issuedResponse{Request: issued.Request, Link: issued.Link, Resent: issued.Resent})
}

// lookupResponse carries the claim twice: under subject for generic
// clients and under its own type key (experience, education or project).
type lookupResponse struct {
	Verification *models.VerificationRequest `json:"verification"`
	Subject      models.Claim                `json:"subject"`
	Experience   models.Claim                `json:"experience,omitempty"`
	Education    models.Claim                `json:"education,omitempty"`
	Project      models.Claim                `json:"project,omitempty"`
	Summary      string                      `json:"summary"`
}

func newLookupResponse(view *services.VerificationView) lookupResponse {
	out := lookupResponse{Verification: view.Request, Subject: view.Subject, Summary: view.Subject.Summary()}
	switch view.Request.SubjectType {
	case models.SubjectExperience:
		out.Experience = view.Subject
	case models.SubjectEducation:
		out.Education = view.Subject
	case models.SubjectProject:
		out.Project = view.Subject
	}
	return out
}

// GET /verify/:token
func (h *VerificationHandler) Lookup(c *gin.Context) {
	view, err := h.svc.Lookup(requestContext(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newLookupResponse(view))
}

type rejectBody struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// POST /verify/:token/approve
func (h *VerificationHandler) Approve(c *gin.Context) {
	request, err := h.svc.ApproveByToken(requestContext(c), c.Param("token"), h.optionalUser(c))
	h.respond(c, request, err)
}

// POST /verify/:token/reject
func (h *VerificationHandler) Reject(c *gin.Context) {
	var body rejectBody
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}
	request, err := h.svc.RejectByToken(requestContext(c), c.Param("token"), body.Reason, h.optionalUser(c))
	h.respond(c, request, err)
}

type respondBody struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Reason string `json:"reason" validate:"max=1000"`
}

// PUT /api/verifications/:id/respond
func (h *VerificationHandler) Respond(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	var body respondBody
	if !bindAndValidate(c, &body) {
		return
	}
	decision, _ := workflow.ParseDecision(body.Action)
	request, err := h.svc.Respond(requestContext(c), user, c.Param("id"), decision, body.Reason)
	h.respond(c, request, err)
}

// GET /api/verifications/mine
func (h *VerificationHandler) Mine(c *gin.Context) {
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

// GET /api/verifications/pending
func (h *VerificationHandler) Pending(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	requests, err := h.svc.ListPending(requestContext(c), user.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, requests)
}

// respond answers a transition. A request that was already resolved is
// reported as a normal 200 with already_resolved set.
func (h *VerificationHandler) respond(c *gin.Context, request *models.VerificationRequest, err error) {
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

type transitionResponse struct {
	Request         any  `json:"request"`
	AlreadyResolved bool `json:"already_resolved"`
}

// optionalUser attributes token actions to the signed-in caller, if any.
func (h *VerificationHandler) optionalUser(c *gin.Context) *models.User {
	if h.authn == nil || h.authn.Token(c) == "" {
		return nil
	}
	user, _, err := h.authn.Authenticate(c)
	if err != nil {
		return nil
	}
	return user
}
