package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/logger"
	"github.com/charlesng35/verifolio/pkg/metrics"
	"github.com/charlesng35/verifolio/pkg/response"
)

// RequireRole admits callers holding any of roles. It must run after Auth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !user.Identity().HasRole(roles...) {
			metrics.RoleChecks.WithLabelValues("deny").Inc()
			logger.WithModule("rbac").Debug("role denied",
				zap.String("user_id", user.ID),
				zap.String("role", string(user.Role)),
				zap.String("path", c.FullPath()),
			)
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		metrics.RoleChecks.WithLabelValues("allow").Inc()
		c.Next()
	}
}
