package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/authclient"
)

func startLoopback(t *testing.T) *Loopback {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loop, err := NewLoopback(LoopbackConfig{Page: []byte("<html>relay</html>")})
	require.NoError(t, err)
	loop.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = loop.Shutdown(ctx)
	})
	return loop
}

func postJSON(t *testing.T, target, origin string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestLoopbackServesPage(t *testing.T) {
	loop := startLoopback(t)

	resp, err := http.Get(loop.CallbackURL() + "?success=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Contains(t, string(body), "relay")
}

func TestLoopbackRelaysSignalsOnce(t *testing.T) {
	loop := startLoopback(t)

	resp := postJSON(t, loop.Origin()+"/auth/relay", loop.Origin(), relayRequest{Fragment: "auth=%7B%7D", Query: "code=abc&state=xyz"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case signals := <-loop.Signals():
		require.Equal(t, "abc", signals.Query.Get("code"))
		require.Equal(t, "xyz", signals.Query.Get("state"))
		require.Equal(t, "auth=%7B%7D", signals.Fragment)
	case <-time.After(time.Second):
		t.Fatal("no signals relayed")
	}

	resp = postJSON(t, loop.Origin()+"/auth/relay", "https://evil.example", relayRequest{Query: "code=evil"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoopbackMessagesAreOriginChecked(t *testing.T) {
	loop := startLoopback(t)
	store := NewMemoryStore()
	rec, err := New(Config{
		Client:   &fakeExchanger{},
		Store:    store,
		Window:   &fakeWindow{},
		Messages: loop.Messages(),
		Clock:    &fakeClock{now: time.Now()},
	})
	require.NoError(t, err)

	msg := Message{Type: MessageAuthSuccess, Token: "tok", User: student}

	resp := postJSON(t, loop.Origin()+"/auth/message", "https://evil.example", msg)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = postJSON(t, loop.Origin()+"/auth/message", loop.Origin(), msg)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := rec.Listen(ctx)
	require.NoError(t, err)
	require.Equal(t, StateAccepted, outcome.State)
	require.Equal(t, "tok", outcome.Session.Token)
	require.Equal(t, authclient.KindToken, outcome.Session.Kind)
}
