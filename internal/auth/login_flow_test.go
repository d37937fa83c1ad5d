package auth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/internal/auth/providers/oidctest"
	"github.com/charlesng35/verifolio/internal/cache"
)

func newTestLoginFlow(t *testing.T) (*LoginFlow, *oidctest.Issuer) {
	t.Helper()

	issuer := oidctest.NewIssuer(t, "client-123")
	provider, err := providers.NewGoogleProvider(context.Background(), providers.GoogleConfig{
		Issuer:       issuer.URL(),
		ClientID:     "client-123",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/google/redirect",
	}, providers.GoogleOptions{HTTPClient: issuer.Server.Client()})
	require.NoError(t, err)

	db, sessions, _ := setupSessionService(t, nil)
	manager, err := NewSSOManager(db, sessions, SSOConfig{AutoProvision: true})
	require.NoError(t, err)

	codec, err := NewStateCodec(testStateKey, time.Minute, nil)
	require.NoError(t, err)

	flow, err := NewLoginFlow(provider, codec, NewStateGuard(cache.NewDatabaseStore(db), time.Minute), manager)
	require.NoError(t, err)
	return flow, issuer
}

func TestLoginFlowCompletesOnce(t *testing.T) {
	flow, issuer := newTestLoginFlow(t)
	ctx := context.Background()

	authURL, err := flow.Begin(ModePopup)
	require.NoError(t, err)
	state := stateFromURL(t, authURL)

	payload, err := flow.DecodeState(state)
	require.NoError(t, err)
	require.Equal(t, ModePopup, payload.Mode)

	code := issuer.IssueCode(oidctest.Subject{ID: "g-1", Email: "ada@example.edu", EmailVerified: true, Name: "Ada"}, authURL)
	result, err := flow.Complete(ctx, code, state, SessionMetadata{IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, "ada@example.edu", result.User.Email)
	require.Equal(t, ModePopup, result.Mode)

	_, err = flow.Complete(ctx, code, state, SessionMetadata{})
	require.ErrorIs(t, err, ErrStateReplayed)
}

func TestLoginFlowRejectsBadStateAndCode(t *testing.T) {
	flow, _ := newTestLoginFlow(t)
	ctx := context.Background()

	_, err := flow.Complete(ctx, "code", "garbage", SessionMetadata{})
	require.ErrorIs(t, err, ErrStateInvalid)

	authURL, err := flow.Begin(ModeRedirect)
	require.NoError(t, err)
	_, err = flow.Complete(ctx, "never-issued", stateFromURL(t, authURL), SessionMetadata{})
	require.ErrorIs(t, err, providers.ErrCodeRejected)
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}
