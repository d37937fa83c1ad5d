package handlers

import (
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/services"
	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/response"
)

// AuditHandler exposes the audit trail to super administrators.
type AuditHandler struct {
	svc *services.AuditService
}

// NewAuditHandler wraps svc.
func NewAuditHandler(svc *services.AuditService) (*AuditHandler, error) {
	if svc == nil {
		return nil, stdErrors.New("audit handler: service is required")
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	filters := services.AuditFilters{
		UserID:   strings.TrimSpace(c.Query("user_id")),
		Action:   strings.TrimSpace(c.Query("action")),
		Result:   strings.TrimSpace(c.Query("result")),
		Resource: strings.TrimSpace(c.Query("resource")),
	}

	var ok bool
	if filters.Since, ok = parseTimeQuery(c, "since"); !ok {
		return
	}
	if filters.Until, ok = parseTimeQuery(c, "until"); !ok {
		return
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: perPage, Filters: filters})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Page(c, logs, total, page, perPage)
}
