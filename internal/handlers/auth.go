package handlers

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/services"
	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/logger"
	"github.com/charlesng35/verifolio/pkg/metrics"
	"github.com/charlesng35/verifolio/pkg/response"
)

const callbackPath = "/auth/callback"

var errProviderDisabled = errors.New("PROVIDER_DISABLED", "Google sign-in is not configured", http.StatusServiceUnavailable)

// AuthHandler serves the Google sign-in flow and the session endpoints.
type AuthHandler struct {
	flow     *iauth.LoginFlow
	sessions *iauth.SessionService
	authn    *middleware.Authenticator
	audit    *services.AuditService
	cookie   SessionCookie
	frontend string
	log      *zap.Logger
}

// AuthHandlerConfig wires an AuthHandler. Flow is nil when Google sign-in
// is disabled.
type AuthHandlerConfig struct {
	Flow           *iauth.LoginFlow
	Sessions       *iauth.SessionService
	Authenticator  *middleware.Authenticator
	Audit          *services.AuditService
	Cookie         SessionCookie
	FrontendOrigin string
}

func NewAuthHandler(cfg AuthHandlerConfig) (*AuthHandler, error) {
	if cfg.Sessions == nil {
		return nil, stdErrors.New("auth handler: session service is required")
	}
	if cfg.Authenticator == nil {
		return nil, stdErrors.New("auth handler: authenticator is required")
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = cfg.Authenticator.CookieName()
	}
	return &AuthHandler{
		flow:     cfg.Flow,
		sessions: cfg.Sessions,
		authn:    cfg.Authenticator,
		audit:    cfg.Audit,
		cookie:   cfg.Cookie,
		frontend: strings.TrimRight(cfg.FrontendOrigin, "/"),
		log:      logger.WithModule("auth"),
	}, nil
}

type loginPayload struct {
	Token string           `json:"token"`
	User  *models.Identity `json:"user"`
}

// GET /api/auth/google/login
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if h.flow == nil {
		response.Error(c, errProviderDisabled)
		return
	}

	mode := iauth.ModeRedirect
	if c.Query("mode") == iauth.ModePopup {
		mode = iauth.ModePopup
	}

	authURL, err := h.flow.Begin(mode)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// GET /api/auth/google/redirect
//
// The provider returns here. The browser is sent on to the frontend
// callback page with the outcome encoded for the session reconciler.
func (h *AuthHandler) GoogleRedirect(c *gin.Context) {
	if h.flow == nil {
		h.redirectError(c, "provider_disabled")
		return
	}
	if providerErr := c.Query("error"); providerErr != "" {
		metrics.AuthAttempts.WithLabelValues("redirect", "failure").Inc()
		h.redirectError(c, providerErr)
		return
	}

	result, err := h.complete(c, c.Query("code"), c.Query("state"))
	if err != nil {
		h.redirectError(c, errorCode(err))
		return
	}

	h.cookie.set(c, result.Token)
	target := h.frontend + callbackPath
	if result.Mode == iauth.ModePopup {
		raw, err := json.Marshal(loginPayload{Token: result.Token, User: result.User.Identity()})
		if err != nil {
			h.redirectError(c, "internal")
			return
		}
		fragment := url.Values{"auth": {string(raw)}, "mode": {iauth.ModePopup}}
		c.Redirect(http.StatusSeeOther, target+"#"+fragment.Encode())
		return
	}
	c.Redirect(http.StatusSeeOther, target+"?success=true")
}

type exchangeRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
}

// POST /api/auth/google/callback
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.flow == nil {
		response.Error(c, errProviderDisabled)
		return
	}

	var req exchangeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.complete(c, req.Code, req.State)
	if err != nil {
		response.Error(c, exchangeError(err))
		return
	}

	h.cookie.set(c, result.Token)
	response.Success(c, http.StatusOK, loginPayload{Token: result.Token, User: result.User.Identity()})
}

func (h *AuthHandler) complete(c *gin.Context, code, state string) (*iauth.LoginResult, error) {
	ctx := requestContext(c)
	channel := "redirect"
	if c.Request.Method == http.MethodPost {
		channel = "exchange"
	}

	result, err := h.flow.Complete(ctx, strings.TrimSpace(code), strings.TrimSpace(state), iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(channel, "failure").Inc()
		h.log.Info("sign-in failed", zap.String("channel", channel), zap.Error(err))
		h.record(ctx, nil, "auth.login", services.AuditResultFailure, c, map[string]any{"channel": channel, "error": errorCode(err)})
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues(channel, "success").Inc()
	h.record(ctx, result.User, "auth.login", services.AuditResultSuccess, c, map[string]any{"channel": channel, "mode": result.Mode})
	return result, nil
}

func (h *AuthHandler) redirectError(c *gin.Context, code string) {
	c.Redirect(http.StatusSeeOther, h.frontend+callbackPath+"?"+url.Values{"error": {code}}.Encode())
}

type validateResponse struct {
	Valid bool             `json:"valid"`
	User  *models.Identity `json:"user,omitempty"`
}

// POST /auth/validate
//
// Always answers 200; an absent or revoked session is reported as
// valid=false so the caller can fall through to the login page.
func (h *AuthHandler) Validate(c *gin.Context) {
	user, _, err := h.authn.Authenticate(c)
	if err != nil {
		if stdErrors.Is(err, errors.ErrSessionRevoked) {
			h.cookie.clear(c)
		}
		metrics.AuthAttempts.WithLabelValues("validate", "failure").Inc()
		response.Success(c, http.StatusOK, validateResponse{Valid: false})
		return
	}
	metrics.AuthAttempts.WithLabelValues("validate", "success").Inc()
	response.Success(c, http.StatusOK, validateResponse{Valid: true, User: user.Identity()})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := requestContext(c)
	user, claims, err := h.authn.Authenticate(c)
	if err == nil {
		if err := h.sessions.RevokeSession(ctx, claims.SessionID); err != nil {
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
			return
		}
		h.record(ctx, user, "auth.logout", services.AuditResultSuccess, c, nil)
	}

	h.cookie.clear(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, user.Identity())
}

func (h *AuthHandler) record(ctx context.Context, user *models.User, action, result string, c *gin.Context, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	entry := services.AuditEntry{
		Action:    action,
		Result:    result,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Metadata:  metadata,
	}
	if user != nil {
		entry.UserID = &user.ID
		entry.Actor = user.Email
		entry.Resource = "user:" + user.ID
	}
	if err := h.audit.Log(ctx, entry); err != nil {
		h.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// exchangeError maps sign-in failures onto API errors. Anything the client
// can't fix by retrying is EXCHANGE_REJECTED; the rest is a 5xx.
func exchangeError(err error) *errors.AppError {
	switch {
	case stdErrors.Is(err, iauth.ErrSSOUserDisabled):
		return errors.ErrForbidden.WithMessage("This account has been disabled")
	case stdErrors.Is(err, iauth.ErrSSOEmailUnverified), stdErrors.Is(err, iauth.ErrSSOEmailRequired):
		return errors.ErrExchangeRejected.WithMessage("A verified Google email is required")
	case isRejection(err):
		return errors.ErrExchangeRejected.WithInternal(err)
	}
	return errors.ErrInternalServer.WithInternal(err)
}

func isRejection(err error) bool {
	for _, target := range []error{
		iauth.ErrStateInvalid,
		iauth.ErrStateExpired,
		iauth.ErrStateReplayed,
		providers.ErrCodeRejected,
		providers.ErrNonceMismatch,
		iauth.ErrSSOUserNotFound,
		iauth.ErrSSOIdentityConflict,
	} {
		if stdErrors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorCode(err error) string {
	switch {
	case stdErrors.Is(err, iauth.ErrStateExpired):
		return "state_expired"
	case stdErrors.Is(err, iauth.ErrStateInvalid), stdErrors.Is(err, iauth.ErrStateReplayed):
		return "invalid_state"
	case stdErrors.Is(err, iauth.ErrSSOEmailUnverified), stdErrors.Is(err, iauth.ErrSSOEmailRequired):
		return "email_unverified"
	case stdErrors.Is(err, iauth.ErrSSOUserDisabled):
		return "account_disabled"
	case isRejection(err):
		return "exchange_rejected"
	}
	return "auth_failed"
}
