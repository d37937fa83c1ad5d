package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/app"
	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/handlers"
	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/monitoring"
	"github.com/charlesng35/verifolio/internal/monitoring/checks"
	"github.com/charlesng35/verifolio/internal/notifications"
	"github.com/charlesng35/verifolio/internal/services"
)

// Dependencies are the wired services the router exposes. LoginFlow is nil
// when Google sign-in is disabled.
type Dependencies struct {
	Config        *app.Config
	DB            *gorm.DB
	Sessions      *iauth.SessionService
	LoginFlow     *iauth.LoginFlow
	Users         *services.UserService
	Audit         *services.AuditService
	Claims        *services.ClaimService
	Verifications *services.VerificationService
	Associations  *services.AssociationService
	Hub           *notifications.Hub
	RateStore     middleware.RateStore
	// Health defaults to a database readiness probe.
	Health *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Users == nil || deps.Claims == nil || deps.Verifications == nil || deps.Associations == nil {
		return nil, fmt.Errorf("workflow services must be provided")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("notification hub must be provided")
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}

	cfg := deps.Config
	origins := cfg.Server.CORSOrigins()

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(cfg.Monitoring.Prometheus.Endpoint, "/health/live", "/health/ready"))
	r.Use(middleware.SecurityHeaders(cfg.Server.TLS))
	r.Use(middleware.CORS(origins...))
	if limit := cfg.Server.RateLimit; limit.Requests > 0 && limit.Window > 0 {
		r.Use(middleware.RateLimit(deps.RateStore, limit.Requests, limit.Window))
	}
	r.Use(middleware.OriginGuard(origins...))

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager()
		health.RegisterReadiness(checks.Database(deps.DB, 0))
	}
	registerHealthRoutes(r, cfg, health)

	authn, err := middleware.NewAuthenticator(deps.Sessions, deps.Users, cfg.Auth.CookieName())
	if err != nil {
		return nil, err
	}
	requireAuth := middleware.Auth(authn)

	api := r.Group("/api")
	api.Use(requireAuth)

	authHandler, err := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Flow:          deps.LoginFlow,
		Sessions:      deps.Sessions,
		Authenticator: authn,
		Audit:         deps.Audit,
		Cookie: handlers.SessionCookie{
			Name:   cfg.Auth.CookieName(),
			Domain: cfg.Auth.Session.CookieDomain,
			Secure: cfg.Auth.Session.SecureCookie,
			TTL:    cfg.Auth.SessionTTL(),
		},
		FrontendOrigin: cfg.Server.FrontendOrigin,
	})
	if err != nil {
		return nil, err
	}
	registerAuthRoutes(r, api, authHandler)

	profileHandler, err := handlers.NewProfileHandler(deps.Users)
	if err != nil {
		return nil, err
	}
	claimHandler, err := handlers.NewClaimHandler(deps.Claims)
	if err != nil {
		return nil, err
	}
	registerProfileRoutes(api, profileHandler, claimHandler)

	verificationHandler, err := handlers.NewVerificationHandler(deps.Verifications, authn)
	if err != nil {
		return nil, err
	}
	registerVerificationRoutes(r, api, requireAuth, verificationHandler)

	associationHandler, err := handlers.NewAssociationHandler(deps.Associations)
	if err != nil {
		return nil, err
	}
	registerAssociationRoutes(r, requireAuth, associationHandler)

	if deps.Audit != nil {
		auditHandler, err := handlers.NewAuditHandler(deps.Audit)
		if err != nil {
			return nil, err
		}
		registerAuditRoutes(api, auditHandler)
	}

	eventsHandler, err := handlers.NewEventsHandler(deps.Hub)
	if err != nil {
		return nil, err
	}
	api.GET("/events", eventsHandler.Stream)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
