package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/auth/providers/oidctest"
	"github.com/charlesng35/verifolio/internal/handlers/testutil"
	"github.com/charlesng35/verifolio/internal/models"
)

type loginData struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

func beginLogin(t *testing.T, env *testutil.Env, mode string) (authURL, state string) {
	t.Helper()

	w := env.Request(http.MethodGet, "/api/auth/google/login?mode="+mode, nil, "")
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	authURL = w.Header().Get("Location")
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authURL, env.Issuer.URL()), authURL)
	state = parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return authURL, state
}

func sessionCookie(t *testing.T, w interface{ Result() *http.Response }) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "auth-token" {
			return c
		}
	}
	t.Fatal("auth-token cookie not set")
	return nil
}

func TestAuthHandler_PopupRedirectCarriesFragment(t *testing.T) {
	env := testutil.NewEnv(t)

	authURL, state := beginLogin(t, env, "popup")
	code := env.Issuer.IssueCode(oidctest.Subject{ID: "g-1", Email: "Ada@Uni.edu", EmailVerified: true, Name: "Ada"}, authURL)

	w := env.Request(http.MethodGet, "/api/auth/google/redirect?"+url.Values{"code": {code}, "state": {state}}.Encode(), nil, "")
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, testutil.FrontendOrigin+"/auth/callback", location.Scheme+"://"+location.Host+location.Path)

	fragment, err := url.ParseQuery(location.Fragment)
	require.NoError(t, err)
	require.Equal(t, "popup", fragment.Get("mode"))

	var payload loginData
	require.NoError(t, json.Unmarshal([]byte(fragment.Get("auth")), &payload))
	require.NotEmpty(t, payload.Token)
	require.Equal(t, "ada@uni.edu", payload.User.Email)
	require.Empty(t, payload.User.Role)

	cookie := sessionCookie(t, w)
	require.Equal(t, payload.Token, cookie.Value)
	require.True(t, cookie.HttpOnly)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, payload.Token)
	require.Equal(t, http.StatusOK, me.Code)
	var identity models.Identity
	testutil.DecodeInto(t, testutil.DecodeResponse(t, me).Data, &identity)
	require.Equal(t, payload.User.ID, identity.ID)
}

func TestAuthHandler_RedirectModeSignalsSuccess(t *testing.T) {
	env := testutil.NewEnv(t)

	authURL, state := beginLogin(t, env, "redirect")
	code := env.Issuer.IssueCode(oidctest.Subject{ID: "g-2", Email: "bo@uni.edu", EmailVerified: true}, authURL)

	w := env.Request(http.MethodGet, "/api/auth/google/redirect?"+url.Values{"code": {code}, "state": {state}}.Encode(), nil, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, testutil.FrontendOrigin+"/auth/callback?success=true", w.Header().Get("Location"))
	require.NotEmpty(t, sessionCookie(t, w).Value)
}

func TestAuthHandler_RedirectReportsErrors(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/auth/google/redirect?error=access_denied", nil, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, testutil.FrontendOrigin+"/auth/callback?error=access_denied", w.Header().Get("Location"))

	w = env.Request(http.MethodGet, "/api/auth/google/redirect?code=abc&state=forged", nil, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, testutil.FrontendOrigin+"/auth/callback?error=invalid_state", w.Header().Get("Location"))
}

func TestAuthHandler_CodeExchangeIsSingleUse(t *testing.T) {
	env := testutil.NewEnv(t)

	authURL, state := beginLogin(t, env, "redirect")
	code := env.Issuer.IssueCode(oidctest.Subject{ID: "g-3", Email: "cy@uni.edu", EmailVerified: true, Name: "Cy"}, authURL)
	body := map[string]string{"code": code, "state": state}

	w := env.Request(http.MethodPost, "/api/auth/google/callback", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var payload loginData
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	require.NotEmpty(t, payload.Token)
	require.Equal(t, "Cy", payload.User.Name)
	require.Equal(t, payload.Token, sessionCookie(t, w).Value)

	replay := env.Request(http.MethodPost, "/api/auth/google/callback", body, "")
	require.Equal(t, http.StatusBadRequest, replay.Code)
	resp := testutil.DecodeResponse(t, replay)
	require.False(t, resp.Success)
	require.Equal(t, "EXCHANGE_REJECTED", resp.Error.Code)

	missing := env.Request(http.MethodPost, "/api/auth/google/callback", map[string]string{"code": code}, "")
	require.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestAuthHandler_UnverifiedEmailIsRejected(t *testing.T) {
	env := testutil.NewEnv(t)

	authURL, state := beginLogin(t, env, "redirect")
	code := env.Issuer.IssueCode(oidctest.Subject{ID: "g-4", Email: "dee@uni.edu", EmailVerified: false}, authURL)

	w := env.Request(http.MethodPost, "/api/auth/google/callback", map[string]string{"code": code, "state": state}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "EXCHANGE_REJECTED", testutil.DecodeResponse(t, w).Error.Code)
}

func TestAuthHandler_ValidateAndLogout(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("eve@uni.edu", models.RoleStudent, "")
	token := env.Login(user)

	validate := func() (bool, *models.Identity) {
		req := env.NewRequest(http.MethodPost, "/auth/validate", nil, "")
		req.AddCookie(&http.Cookie{Name: "auth-token", Value: token})
		w := env.Do(req)
		require.Equal(t, http.StatusOK, w.Code)
		var data struct {
			Valid bool             `json:"valid"`
			User  *models.Identity `json:"user"`
		}
		testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &data)
		return data.Valid, data.User
	}

	valid, identity := validate()
	require.True(t, valid)
	require.Equal(t, user.ID, identity.ID)
	require.Equal(t, models.RoleStudent, identity.Role)

	logout := env.Request(http.MethodPost, "/api/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, logout.Code)
	cleared := sessionCookie(t, logout)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)

	valid, identity = validate()
	require.False(t, valid)
	require.Nil(t, identity)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusUnauthorized, me.Code)
	require.Equal(t, "SESSION_REVOKED", testutil.DecodeResponse(t, me).Error.Code)
}

func TestAuthHandler_LogoutWithoutSession(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestRouter_RejectsForeignOrigin(t *testing.T) {
	env := testutil.NewEnv(t)

	req := env.NewRequest(http.MethodPost, "/auth/validate", nil, "")
	req.Header.Set("Origin", "https://evil.example")
	w := env.Do(req)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "ORIGIN_REJECTED", testutil.DecodeResponse(t, w).Error.Code)

	req = env.NewRequest(http.MethodPost, "/auth/validate", nil, "")
	req.Header.Set("Origin", testutil.FrontendOrigin)
	w = env.Do(req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, testutil.FrontendOrigin, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "verifolio_")

	w = env.Request(http.MethodGet, "/nope", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
