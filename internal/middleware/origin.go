package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/logger"
	"github.com/charlesng35/verifolio/pkg/response"
)

var unsafeMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// OriginGuard rejects cross-site state changing requests. A request passes
// when it carries no Origin header (non-browser clients), when the origin
// is allowed, or when it targets the same host.
func OriginGuard(allowedOrigins ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = normalizeOrigin(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if _, unsafe := unsafeMethods[c.Request.Method]; !unsafe {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if _, ok := allowed[normalizeOrigin(origin)]; ok || sameHost(origin, c.Request.Host) {
			c.Next()
			return
		}

		logger.WithModule("http").Warn("cross-site request rejected",
			zap.String("origin", origin),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
		)
		response.Error(c, errors.ErrOriginRejected)
		c.Abort()
	}
}

func sameHost(origin, host string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, host)
}
