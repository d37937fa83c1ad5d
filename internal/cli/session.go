package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/authclient"
	"github.com/charlesng35/verifolio/internal/guard"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/reconciler"
	"github.com/charlesng35/verifolio/pkg/logger"
)

const (
	requestTimeout = 15 * time.Second
	// The terminal has no page to keep a failure visible on.
	failureDelay = 100 * time.Millisecond
)

// clientSession bundles the client stack for one invocation.
type clientSession struct {
	store    *reconciler.FileStore
	client   *authclient.Client
	rec      *reconciler.Reconciler
	window   *terminalWindow
	messages *reconciler.MessageChannel
	log      *zap.Logger
}

type sessionOptions struct {
	popup    bool
	browser  authclient.Browser
	messages *reconciler.MessageChannel
}

func openSession(c *CLI, opts globalOptions, so sessionOptions) (*clientSession, error) {
	log := logger.WithModule("cli")

	store, err := reconciler.NewFileStore(opts.sessionDir)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	token := func() string {
		session, err := store.Load()
		if err != nil || !session.Valid(time.Now()) {
			return ""
		}
		return session.Token
	}

	client, err := authclient.New(authclient.Config{
		BaseURL:    opts.server,
		Popup:      so.popup,
		HTTPClient: &http.Client{Jar: jar, Timeout: requestTimeout},
		Browser:    so.browser,
		Token:      token,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	base := client.BaseURL()
	restoreCookies(store, jar, base, log)

	window := &terminalWindow{out: c.Out}
	rec, err := reconciler.New(reconciler.Config{
		Client:       client,
		Store:        store,
		Window:       window,
		Messages:     so.messages,
		Logger:       log,
		FailureDelay: failureDelay,
		Jar:          jar,
		JarURL:       base,
	})
	if err != nil {
		return nil, err
	}

	return &clientSession{
		store:    store,
		client:   client,
		rec:      rec,
		window:   window,
		messages: so.messages,
		log:      log,
	}, nil
}

// restoreCookies reloads the persisted session cookie into the jar so the
// ambient cookie channel survives between invocations.
func restoreCookies(store reconciler.SessionStore, jar http.CookieJar, base *url.URL, log *zap.Logger) {
	session, err := store.Load()
	if err != nil {
		log.Warn("ignoring unreadable session file", zap.Error(err))
		return
	}
	if !session.Valid(time.Now()) || len(session.Cookies) == 0 {
		return
	}

	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for _, cookie := range session.Cookies {
		cookies = append(cookies, cookie.HTTPCookie())
	}
	jar.SetCookies(base, cookies)
}

// protect runs fn once the guard admits the current session for roles.
func (s *clientSession) protect(ctx context.Context, c *CLI, roles []models.Role, fn func(*reconciler.Session) error) error {
	g, err := guard.New(s.rec, func(_ context.Context, path string) error {
		fmt.Fprintf(c.Err, "not permitted here; sign in again with `verifolio login` (%s)\n", path)
		return nil
	}, s.log)
	if err != nil {
		return err
	}
	defer g.Unmount()
	return g.Protect(ctx, roles, fn)
}
