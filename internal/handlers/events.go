package handlers

import (
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/notifications"
	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/response"
)

// EventsHandler upgrades authenticated clients to the invalidation stream.
type EventsHandler struct {
	hub *notifications.Hub
}

func NewEventsHandler(hub *notifications.Hub) (*EventsHandler, error) {
	if hub == nil {
		return nil, stdErrors.New("events handler: hub is required")
	}
	return &EventsHandler{hub: hub}, nil
}

// GET /api/events?topics=verification,association
func (h *EventsHandler) Stream(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var topics []string
	for _, part := range strings.Split(c.Query("topics"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			topics = append(topics, part)
		}
	}
	h.hub.Serve(user.ID, topics, c.Writer, c.Request)
}
