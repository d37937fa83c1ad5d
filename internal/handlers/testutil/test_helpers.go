package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/api"
	"github.com/charlesng35/verifolio/internal/app"
	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/internal/auth/providers/oidctest"
	"github.com/charlesng35/verifolio/internal/cache"
	sharedtestutil "github.com/charlesng35/verifolio/internal/database/testutil"
	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/notifications"
	"github.com/charlesng35/verifolio/internal/services"
	"github.com/charlesng35/verifolio/pkg/response"
)

const (
	// FrontendOrigin is the configured browser origin in test environments.
	FrontendOrigin = "http://localhost:5173"
	// ClientID is registered with the test OIDC issuer.
	ClientID = "verifolio-test"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database
// and an in-process OIDC issuer.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	Config        *app.Config
	Sessions      *iauth.SessionService
	Verifications *services.VerificationService
	Hub           *notifications.Hub
	Issuer        *oidctest.Issuer
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	issuer := oidctest.NewIssuer(t, ClientID)

	cfg := &app.Config{
		Server: app.ServerConfig{
			FrontendOrigin: FrontendOrigin,
			RateLimit:      app.RateLimitConfig{Requests: 1000, Window: time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Secret: "test-suite-super-secret-key-32-bytes!!", Issuer: "test-suite"},
			Session: app.SessionSettings{TTL: time.Hour, CookieName: middleware.DefaultSessionCookie},
			Google: app.GoogleSettings{
				Enabled:       true,
				Issuer:        issuer.URL(),
				ClientID:      ClientID,
				ClientSecret:  "secret",
				RedirectURL:   "http://localhost:8000/api/auth/google/redirect",
				AutoProvision: true,
			},
			State: app.StateSettings{Secret: "0123456789abcdef0123456789abcdef", TTL: time.Minute},
		},
		Verification: app.VerificationConfig{BaseURL: FrontendOrigin, TokenTTL: 24 * time.Hour},
	}

	store := cache.NewDatabaseStore(db)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{Cache: iauth.NewStoreSessionCache(store)})
	require.NoError(t, err)

	provider, err := providers.NewGoogleProvider(ctx, cfg.Auth.GoogleProviderConfig(), providers.GoogleOptions{HTTPClient: issuer.Server.Client()})
	require.NoError(t, err)
	manager, err := iauth.NewSSOManager(db, sessions, cfg.Auth.SSOConfig())
	require.NoError(t, err)
	stateKey, err := cfg.Auth.StateKey()
	require.NoError(t, err)
	codec, err := iauth.NewStateCodec(stateKey, cfg.Auth.State.TTL, nil)
	require.NoError(t, err)
	flow, err := iauth.NewLoginFlow(provider, codec, iauth.NewStateGuard(store, cfg.Auth.State.TTL), manager)
	require.NoError(t, err)

	hub := notifications.NewHub(cfg.Server.CORSOrigins())

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(db, audit, hub)
	require.NoError(t, err)
	claims, err := services.NewClaimService(db)
	require.NoError(t, err)
	verifications, err := services.NewVerificationService(db, audit, services.VerificationConfig{
		BaseURL:  cfg.Verification.BaseURL,
		TokenTTL: cfg.Verification.TokenTTL,
	}, services.WithVerificationInvalidator(hub))
	require.NoError(t, err)
	associations, err := services.NewAssociationService(db, audit, hub)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Config:        cfg,
		DB:            db,
		Sessions:      sessions,
		LoginFlow:     flow,
		Users:         users,
		Audit:         audit,
		Claims:        claims,
		Verifications: verifications,
		Associations:  associations,
		Hub:           hub,
		RateStore:     middleware.NewCacheRateStore(store),
	})
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		Config:        cfg,
		Sessions:      sessions,
		Verifications: verifications,
		Hub:           hub,
		Issuer:        issuer,
	}
}

// CreateUser inserts an active user. An empty institute leaves it unset.
func (e *Env) CreateUser(email string, role models.Role, institute string) *models.User {
	e.T.Helper()

	user := &models.User{Email: email, DisplayName: email, Role: role, IsActive: true}
	if institute != "" {
		user.Institute = &institute
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Login issues a session for user and returns its bearer token.
func (e *Env) Login(user *models.User) string {
	e.T.Helper()

	token, _, err := e.Sessions.CreateSession(context.Background(), user.ID, iauth.SessionMetadata{Provider: "google"})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Do(e.NewRequest(method, path, body, token))
}

// NewRequest builds a request for the test router.
func (e *Env) NewRequest(method, path string, body any, token string) *http.Request {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// Do serves req through the router.
func (e *Env) Do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
