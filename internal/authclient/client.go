// Package authclient talks to the verifolio backend on behalf of a client:
// it starts the Google sign-in, exchanges authorization codes and checks
// the ambient cookie session.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/models"
)

const defaultTimeout = 15 * time.Second

const (
	loginPath    = "/api/auth/google/login"
	exchangePath = "/api/auth/google/callback"
	validatePath = "/auth/validate"
	logoutPath   = "/api/auth/logout"
	identityPath = "/api/auth/me"
)

var (
	// ErrExchange reports that a code exchange produced no auth material.
	ErrExchange = errors.New("authclient: code exchange failed")
	// ErrExchangeRejected is wrapped by ErrExchange when the backend refused
	// the code itself rather than failing in transit.
	ErrExchangeRejected = errors.New("authclient: code rejected")
	// ErrNoSession reports that the cookie session is absent or invalid.
	ErrNoSession = errors.New("authclient: no valid session")
)

// Browser opens the provider login page for the user.
type Browser interface {
	Open(url string) error
}

// BrowserFunc adapts a function to Browser.
type BrowserFunc func(url string) error

func (f BrowserFunc) Open(url string) error { return f(url) }

// Config configures a Client.
type Config struct {
	BaseURL string
	// Popup asks the backend to deliver the result as a popup message
	// rather than a same-tab redirect.
	Popup      bool
	HTTPClient *http.Client
	Browser    Browser
	// Token returns the persisted bearer token, if any, sent on every call.
	Token  func() string
	Logger *zap.Logger
}

// Client is the credential exchange client.
type Client struct {
	base    *url.URL
	popup   bool
	http    *http.Client
	browser Browser
	token   func() string
	log     *zap.Logger
}

// New builds a client. Without an HTTPClient it creates one with an
// in-memory cookie jar.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("authclient: invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("authclient: cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: defaultTimeout}
	}
	if httpClient.Jar == nil {
		return nil, errors.New("authclient: http client must carry a cookie jar")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	token := cfg.Token
	if token == nil {
		token = func() string { return "" }
	}

	return &Client{
		base:    base,
		popup:   cfg.Popup,
		http:    httpClient,
		browser: cfg.Browser,
		token:   token,
		log:     log.With(zap.String("component", "authclient")),
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() *url.URL {
	cpy := *c.base
	return &cpy
}

// Jar exposes the cookie jar backing the ambient session.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// Initiate returns the backend login URL and opens it in the browser when
// one is configured.
func (c *Client) Initiate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mode := "redirect"
	if c.popup {
		mode = "popup"
	}
	target := c.endpoint(loginPath)
	target.RawQuery = url.Values{"mode": {mode}}.Encode()
	loginURL := target.String()

	if c.browser != nil {
		if err := c.browser.Open(loginURL); err != nil {
			return loginURL, fmt.Errorf("authclient: open browser: %w", err)
		}
	}
	c.log.Debug("login initiated", zap.String("mode", mode))
	return loginURL, nil
}

// ExchangeCode trades an authorization code for auth material.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) (Result, error) {
	var payload Payload
	err := c.Call(ctx, http.MethodPost, exchangePath, map[string]string{"code": code, "state": state}, &payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			return Result{}, fmt.Errorf("%w: %w: %s", ErrExchange, ErrExchangeRejected, apiErr.Code)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	result, ok := payload.Result()
	if !ok {
		return Result{}, fmt.Errorf("%w: empty response", ErrExchange)
	}
	return result, nil
}

type validation struct {
	Valid bool `json:"valid"`
	Payload
}

// ValidateExistingSession asks the backend whether the cookie jar (or the
// persisted token) still carries a live session.
func (c *Client) ValidateExistingSession(ctx context.Context) (Result, error) {
	var resp validation
	if err := c.Call(ctx, http.MethodPost, validatePath, struct{}{}, &resp); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if !resp.Valid {
		return Result{}, ErrNoSession
	}

	result, ok := resp.Payload.Result()
	if !ok {
		return Result{}, fmt.Errorf("%w: no identity returned", ErrNoSession)
	}
	return result, nil
}

// FetchIdentity resolves the identity behind a bearer token that arrived
// without one. It never consults the cookie session.
func (c *Client) FetchIdentity(ctx context.Context, token string) (*models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoSession
	}
	var identity models.Identity
	if err := c.do(ctx, http.MethodGet, identityPath, token, nil, &identity); err != nil {
		return nil, fmt.Errorf("authclient: fetch identity: %w", err)
	}
	if identity.ID == "" {
		return nil, errors.New("authclient: fetch identity: empty identity")
	}
	return &identity, nil
}

// Logout revokes the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.Call(ctx, http.MethodPost, logoutPath, struct{}{}, nil)
}

func (c *Client) endpoint(path string) *url.URL {
	return c.base.JoinPath(path)
}

// APIError is a non-success envelope returned by the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call sends body as JSON to path and decodes the envelope data into out.
// A nil out discards the data.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, c.token(), body, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authclient: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path).String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("authclient: decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("authclient: decode data: %w", err)
	}
	return nil
}
