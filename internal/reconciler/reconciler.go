// Package reconciler turns the authentication signals a client can receive
// (popup message, redirect fragment, authorization code, cookie session)
// into exactly one canonical Session or a terminal failure.
package reconciler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/authclient"
	"github.com/charlesng35/verifolio/internal/landing"
	"github.com/charlesng35/verifolio/internal/models"
)

// DefaultFailureDelay is how long a failure message stays visible before
// redirecting to login.
const DefaultFailureDelay = 1500 * time.Millisecond

// SessionCookieName is the backend cookie carrying the session.
const SessionCookieName = "auth-token"

// Failure reasons.
const (
	ReasonAuthFailed       = "AUTH_FAILED"
	ReasonExchangeRejected = "EXCHANGE_REJECTED"
	ReasonUntrustedOrigin  = "UNTRUSTED_ORIGIN"
)

// Channel names the signal a session was accepted from.
type Channel string

const (
	ChannelMessage  Channel = "message"
	ChannelFragment Channel = "fragment"
	ChannelSuccess  Channel = "success"
	ChannelCode     Channel = "code"
	ChannelCookie   Channel = "cookie"
)

// State is the terminal state of a run.
type State string

const (
	StateAccepted State = "ACCEPTED"
	StateFailed   State = "FAILED"
)

// Outcome is the single terminal result of a reconciliation.
type Outcome struct {
	State       State
	Session     *Session
	Channel     Channel
	Reason      string
	Destination string
	// Replayed is set when an already consumed signal resolved to the
	// active session without any network call.
	Replayed bool
}

// Signals are the URL parts a callback page received.
type Signals struct {
	Fragment string
	Query    url.Values
}

// SignalsFromURL splits a callback URL into signals.
func SignalsFromURL(u *url.URL) Signals {
	if u == nil {
		return Signals{}
	}
	return Signals{Fragment: u.Fragment, Query: u.Query()}
}

// Exchanger is the subset of the credential exchange client the reconciler
// drives.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code, state string) (authclient.Result, error)
	ValidateExistingSession(ctx context.Context) (authclient.Result, error)
	// FetchIdentity resolves the identity behind a bare bearer token.
	FetchIdentity(ctx context.Context, token string) (*models.Identity, error)
}

// Window is the page the reconciler runs in.
type Window interface {
	// HasOpener reports whether the page is a popup with a live opener.
	HasOpener() bool
	PostToOpener(ctx context.Context, msg Message) error
	Close() error
	// ReplaceURL drops consumed signals from the address bar and history.
	ReplaceURL(ctx context.Context) error
	Navigate(ctx context.Context, path string) error
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Config wires a Reconciler.
type Config struct {
	Client   Exchanger
	Store    SessionStore
	Window   Window
	Messages *MessageChannel
	Clock    Clock
	Logger   *zap.Logger

	FailureDelay time.Duration
	SessionTTL   time.Duration
	// LenientCodeRejection makes a code the backend rejected fall through to
	// the cookie check like a transport failure instead of failing.
	LenientCodeRejection bool

	// Jar and JarURL, when set, let the reconciler copy the session cookie
	// into the persisted session and clear it on failure.
	Jar    http.CookieJar
	JarURL *url.URL
}

// Reconciler is the only writer of the session store.
type Reconciler struct {
	mu sync.Mutex

	client   Exchanger
	store    SessionStore
	window   Window
	messages *MessageChannel
	clock    Clock
	log      *zap.Logger

	failureDelay time.Duration
	sessionTTL   time.Duration
	strictCodes  bool
	jar          http.CookieJar
	jarURL       *url.URL

	consumed map[string]struct{}
}

// New validates cfg and builds a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Client == nil {
		return nil, errors.New("reconciler: client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("reconciler: session store is required")
	}
	if cfg.Window == nil {
		return nil, errors.New("reconciler: window is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	delay := cfg.FailureDelay
	if delay <= 0 {
		delay = DefaultFailureDelay
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Reconciler{
		client:       cfg.Client,
		store:        cfg.Store,
		window:       cfg.Window,
		messages:     cfg.Messages,
		clock:        clock,
		log:          log.With(zap.String("component", "reconciler")),
		failureDelay: delay,
		sessionTTL:   ttl,
		strictCodes:  !cfg.LenientCodeRejection,
		jar:          cfg.Jar,
		jarURL:       cfg.JarURL,
		consumed:     make(map[string]struct{}),
	}, nil
}

// Snapshot returns a copy of the active session, or nil. Expired sessions
// are reported as absent.
func (r *Reconciler) Snapshot() *Session {
	session, err := r.store.Load()
	if err != nil {
		r.log.Warn("failed to load session", zap.Error(err))
		return nil
	}
	if !session.Valid(r.clock.Now()) {
		return nil
	}
	return session
}

// Run reconciles one page load. The checks run strictly in order and the
// first one that produces auth material wins.
func (r *Reconciler) Run(ctx context.Context, signals Signals) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 1. fragment payload
	if raw, ok := fragmentPayload(signals.Fragment); ok {
		key := digest("fragment", raw)
		if outcome, replayed := r.replay(ctx, key); replayed {
			return outcome
		} else if r.seen(key) {
			r.log.Debug("ignoring consumed fragment")
		} else {
			payload, err := authclient.ParsePayload([]byte(raw))
			if err != nil {
				r.log.Debug("malformed fragment payload", zap.Error(err))
			} else if result, ok := payload.Result(); ok {
				return r.accept(ctx, result, ChannelFragment, key)
			}
		}
	}

	query := signals.Query
	if query == nil {
		query = url.Values{}
	}

	// 2. explicit error
	if reason := strings.TrimSpace(query.Get("error")); reason != "" {
		r.log.Info("provider reported an error", zap.String("error", reason))
		return r.fail(ctx, ReasonAuthFailed)
	}

	// 3. success flag means the backend already set the cookie
	if query.Get("success") == "true" {
		result, err := r.client.ValidateExistingSession(ctx)
		if err != nil {
			r.log.Info("session validation after success redirect failed", zap.Error(err))
			return r.fail(ctx, ReasonAuthFailed)
		}
		return r.accept(ctx, result, ChannelSuccess, "")
	}

	// 4. authorization code
	if code := query.Get("code"); code != "" {
		key := digest("code", code)
		if outcome, replayed := r.replay(ctx, key); replayed {
			return outcome
		}
		if !r.seen(key) {
			r.remember(key)
			result, err := r.client.ExchangeCode(ctx, code, query.Get("state"))
			switch {
			case err == nil:
				return r.accept(ctx, result, ChannelCode, key)
			case r.strictCodes && errors.Is(err, authclient.ErrExchangeRejected):
				r.log.Warn("authorization code rejected", zap.Error(err))
				return r.fail(ctx, ReasonExchangeRejected)
			default:
				r.log.Info("code exchange failed, checking cookie session", zap.Error(err))
			}
		}
	}

	// 5. ambient cookie
	result, err := r.client.ValidateExistingSession(ctx)
	if err != nil {
		r.log.Info("no session could be established", zap.Error(err))
		return r.fail(ctx, ReasonAuthFailed)
	}
	return r.accept(ctx, result, ChannelCookie, "")
}

// Listen consumes popup messages until one reaches a terminal outcome or
// ctx ends.
func (r *Reconciler) Listen(ctx context.Context) (Outcome, error) {
	if r.messages == nil {
		return Outcome{}, errors.New("reconciler: no message channel configured")
	}

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case msg := <-r.messages.messages():
			if outcome, ok := r.handleMessage(ctx, msg); ok {
				return outcome, nil
			}
		}
	}
}

func (r *Reconciler) handleMessage(ctx context.Context, msg Message) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Type {
	case MessageAuthError:
		r.log.Info("popup reported an error", zap.String("error", msg.Error))
		return r.fail(ctx, ReasonAuthFailed), true
	case MessageAuthSuccess:
		if result, ok := authclient.NewResult(msg.Token, msg.User); ok {
			userID := ""
			if result.Identity != nil {
				userID = result.Identity.ID
			}
			key := digest("message", msg.Token+"|"+userID)
			if outcome, replayed := r.replay(ctx, key); replayed {
				return outcome, true
			}
			return r.accept(ctx, result, ChannelMessage, key), true
		}
		if msg.CookieAuth {
			result, err := r.client.ValidateExistingSession(ctx)
			if err != nil {
				return r.fail(ctx, ReasonAuthFailed), true
			}
			return r.accept(ctx, result, ChannelMessage, ""), true
		}
		r.log.Debug("ignoring empty success message")
	default:
		r.log.Debug("ignoring message", zap.String("type", msg.Type))
	}
	return Outcome{}, false
}

// Recheck validates the ambient cookie session and stores the result
// without navigating. The access guard uses it before denying.
func (r *Reconciler) Recheck(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current := r.Snapshot(); current != nil {
		return current, nil
	}

	result, err := r.client.ValidateExistingSession(ctx)
	if err != nil {
		return nil, err
	}
	session := r.newSession(result, ChannelCookie, "")
	if err := r.store.Save(session); err != nil {
		return nil, fmt.Errorf("reconciler: save session: %w", err)
	}
	return session.clone(), nil
}

// Logout clears the local session and the session cookie.
func (r *Reconciler) Logout() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearCookie()
	return r.store.Clear()
}

func (r *Reconciler) accept(ctx context.Context, result authclient.Result, channel Channel, key string) Outcome {
	if result.Kind == authclient.KindToken && result.Identity == nil {
		identity, err := r.client.FetchIdentity(ctx, result.Token)
		if err != nil {
			r.log.Info("token identity could not be resolved", zap.String("channel", string(channel)), zap.Error(err))
			if key != "" {
				r.remember(key)
			}
			return r.fail(ctx, ReasonAuthFailed)
		}
		result.Identity = identity
	}

	session := r.newSession(result, channel, key)
	if err := r.store.Save(session); err != nil {
		r.log.Error("failed to persist session", zap.Error(err))
		return r.fail(ctx, ReasonAuthFailed)
	}
	if key != "" {
		r.remember(key)
	}

	if err := r.window.ReplaceURL(ctx); err != nil {
		r.log.Warn("failed to strip callback url", zap.Error(err))
	}

	outcome := Outcome{State: StateAccepted, Session: session.clone(), Channel: channel}

	if r.window.HasOpener() {
		msg := Message{Type: MessageAuthSuccess, Token: result.Token, User: result.Identity, CookieAuth: result.Kind == authclient.KindCookie}
		if err := r.window.PostToOpener(ctx, msg); err != nil {
			r.log.Warn("failed to notify opener", zap.Error(err))
		}
		if err := r.window.Close(); err != nil {
			r.log.Debug("failed to close popup", zap.Error(err))
		}
		r.log.Info("session accepted in popup", zap.String("channel", string(channel)))
		return outcome
	}

	outcome.Destination = landing.Route(result.Identity)
	if err := r.window.Navigate(ctx, outcome.Destination); err != nil {
		r.log.Warn("navigation failed", zap.String("destination", outcome.Destination), zap.Error(err))
	}
	r.log.Info("session accepted",
		zap.String("channel", string(channel)),
		zap.String("kind", result.Kind.String()),
		zap.String("destination", outcome.Destination),
	)
	return outcome
}

func (r *Reconciler) replay(ctx context.Context, key string) (Outcome, bool) {
	current := r.Snapshot()
	if !current.consumed(key) {
		return Outcome{}, false
	}

	if err := r.window.ReplaceURL(ctx); err != nil {
		r.log.Warn("failed to strip callback url", zap.Error(err))
	}
	r.log.Debug("consumed signal replayed, reusing active session", zap.String("channel", string(current.Channel)))
	return Outcome{
		State:       StateAccepted,
		Session:     current,
		Channel:     current.Channel,
		Destination: landing.Route(current.Identity),
		Replayed:    true,
	}, true
}

func (r *Reconciler) fail(ctx context.Context, reason string) Outcome {
	if err := r.store.Clear(); err != nil {
		r.log.Warn("failed to clear session", zap.Error(err))
	}
	r.clearCookie()
	if err := r.window.ReplaceURL(ctx); err != nil {
		r.log.Warn("failed to strip callback url", zap.Error(err))
	}

	outcome := Outcome{State: StateFailed, Reason: reason, Destination: landing.LoginPath()}

	select {
	case <-r.clock.After(r.failureDelay):
		if err := r.window.Navigate(ctx, outcome.Destination); err != nil {
			r.log.Warn("navigation failed", zap.String("destination", outcome.Destination), zap.Error(err))
		}
	case <-ctx.Done():
	}
	return outcome
}

func (r *Reconciler) newSession(result authclient.Result, channel Channel, key string) *Session {
	now := r.clock.Now()
	session := &Session{
		Kind:      result.Kind,
		Token:     result.Token,
		Identity:  result.Identity,
		Channel:   channel,
		CreatedAt: now,
		ExpiresAt: now.Add(r.sessionTTL),
		Cookies:   r.sessionCookies(),
	}
	if key != "" {
		session.Sources = []string{key}
	}
	return session
}

func (r *Reconciler) sessionCookies() []Cookie {
	if r.jar == nil || r.jarURL == nil {
		return nil
	}
	var cookies []Cookie
	for _, c := range r.jar.Cookies(r.jarURL) {
		if c.Name == SessionCookieName {
			cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value, Path: "/", Expires: r.clock.Now().Add(r.sessionTTL)})
		}
	}
	return cookies
}

func (r *Reconciler) clearCookie() {
	if r.jar == nil || r.jarURL == nil {
		return
	}
	r.jar.SetCookies(r.jarURL, []*http.Cookie{{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1}})
}

func (r *Reconciler) seen(key string) bool {
	_, ok := r.consumed[key]
	return ok
}

func (r *Reconciler) remember(key string) {
	r.consumed[key] = struct{}{}
}

func fragmentPayload(fragment string) (string, bool) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return "", false
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", false
	}
	raw := strings.TrimSpace(values.Get("auth"))
	return raw, raw != ""
}

func digest(kind, raw string) string {
	sum := sha256.Sum256([]byte(kind + ":" + raw))
	return hex.EncodeToString(sum[:])
}
