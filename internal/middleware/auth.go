package middleware

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/verifolio/internal/auditctx"
	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserKey      = "authUser"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// DefaultSessionCookie carries the session token for browser clients.
const DefaultSessionCookie = "auth-token"

// SessionValidator resolves a token into its live session.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*iauth.Claims, *models.Session, error)
}

// UserLoader loads the identity behind a session.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticator resolves the caller from the auth-token cookie or a Bearer
// header.
type Authenticator struct {
	sessions   SessionValidator
	users      UserLoader
	cookieName string
}

// NewAuthenticator wires the session and user lookups.
func NewAuthenticator(sessions SessionValidator, users UserLoader, cookieName string) (*Authenticator, error) {
	if sessions == nil {
		return nil, stdErrors.New("authenticator: session validator is required")
	}
	if users == nil {
		return nil, stdErrors.New("authenticator: user loader is required")
	}
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultSessionCookie
	}
	return &Authenticator{sessions: sessions, users: users, cookieName: cookieName}, nil
}

// CookieName is the session cookie name.
func (a *Authenticator) CookieName() string {
	return a.cookieName
}

// Token extracts the raw token, preferring the Authorization header.
func (a *Authenticator) Token(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		if token := strings.TrimSpace(authz[7:]); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie(a.cookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// Authenticate resolves the caller. It returns ErrUnauthorized or
// ErrSessionRevoked when no live session backs the request.
func (a *Authenticator) Authenticate(c *gin.Context) (*models.User, *iauth.Claims, error) {
	token := a.Token(c)
	if token == "" {
		return nil, nil, errors.ErrUnauthorized
	}

	ctx := c.Request.Context()
	claims, _, err := a.sessions.Validate(ctx, token)
	if err != nil {
		if stdErrors.Is(err, iauth.ErrSessionRevoked) {
			return nil, nil, errors.ErrSessionRevoked
		}
		return nil, nil, errors.ErrUnauthorized.WithInternal(err)
	}

	user, err := a.users.GetByID(ctx, claims.UserID)
	if err != nil || user == nil || !user.IsActive {
		return nil, nil, errors.ErrUnauthorized
	}
	return user, claims, nil
}

// Auth rejects requests without a live session and stores the caller in
// the gin and request contexts.
func Auth(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, err := a.Authenticate(c)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, err)
			c.Abort()
			return
		}

		bind(c, user, claims)
		c.Next()
	}
}

func bind(c *gin.Context, user *models.User, claims *iauth.Claims) {
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserKey, user)
	c.Set(CtxUserIDKey, user.ID)
	c.Set(CtxSessionIDKey, claims.SessionID)

	ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
		UserID:    user.ID,
		Email:     user.Email,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.Request = c.Request.WithContext(ctx)
}

// CurrentUser returns the caller stored by Auth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}
