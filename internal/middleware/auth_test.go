package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/auditctx"
	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/database/testutil"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/services"
)

type authFixture struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	auth     *Authenticator
	router   *gin.Engine
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "middleware-secret", Issuer: "test-suite"})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)
	users, err := services.NewUserService(db, nil, nil)
	require.NoError(t, err)
	authenticator, err := NewAuthenticator(sessions, users, "")
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.User{Email: "student@example.com", Role: models.RoleStudent, IsActive: true}).Error)
	require.NoError(t, db.Create(&models.User{Email: "verifier@inst.edu", Role: models.RoleVerifier, IsActive: true}).Error)

	r := gin.New()
	r.GET("/me", Auth(authenticator), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		actor, ok := auditctx.FromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"user_id":    user.ID,
			"session_id": c.GetString(CtxSessionIDKey),
			"actor":      actor.Email,
		})
	})
	r.GET("/verifier", Auth(authenticator), RequireRole(models.RoleVerifier), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return &authFixture{db: db, sessions: sessions, auth: authenticator, router: r}
}

func (f *authFixture) login(t *testing.T, email string) (string, *models.Session) {
	t.Helper()
	var user models.User
	require.NoError(t, f.db.Take(&user, "email = ?", email).Error)
	token, session, err := f.sessions.CreateSession(context.Background(), user.ID, iauth.SessionMetadata{Provider: "google"})
	require.NoError(t, err)
	return token, session
}

func (f *authFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	f := newAuthFixture(t)
	token, session := f.login(t, "student@example.com")

	w := f.serve(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = f.serve(req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, session.UserID, payload["user_id"])
	require.Equal(t, session.ID, payload["session_id"])
	require.Equal(t, "student@example.com", payload["actor"])

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: token})
	require.Equal(t, http.StatusOK, f.serve(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token+"tampered")
	require.Equal(t, http.StatusUnauthorized, f.serve(req).Code)
}

func TestAuthMiddlewareRejectsRevokedSession(t *testing.T) {
	f := newAuthFixture(t)
	token, session := f.login(t, "student@example.com")

	require.NoError(t, f.sessions.RevokeSession(context.Background(), session.ID))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: token})
	w := f.serve(req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "SESSION_REVOKED", decodeEnvelope(t, w).Error.Code)
}

func TestRequireRole(t *testing.T) {
	f := newAuthFixture(t)
	studentToken, _ := f.login(t, "student@example.com")
	verifierToken, _ := f.login(t, "verifier@inst.edu")

	req := httptest.NewRequest(http.MethodGet, "/verifier", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	w := f.serve(req)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", decodeEnvelope(t, w).Error.Code)

	req = httptest.NewRequest(http.MethodGet, "/verifier", nil)
	req.Header.Set("Authorization", "Bearer "+verifierToken)
	require.Equal(t, http.StatusOK, f.serve(req).Code)
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole(models.RoleStudent), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
