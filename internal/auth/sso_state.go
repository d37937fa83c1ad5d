package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/verifolio/internal/cache"
	"github.com/charlesng35/verifolio/pkg/crypto"
)

var (
	// ErrStateExpired is returned for state tokens older than the codec TTL.
	ErrStateExpired = errors.New("sso state: expired")
	// ErrStateInvalid covers tampered, foreign or malformed state tokens.
	ErrStateInvalid = errors.New("sso state: invalid")
	// ErrStateReplayed is returned when a state token is presented twice.
	ErrStateReplayed = errors.New("sso state: already used")
)

// Login modes recorded in the state so the redirect handler knows how to
// hand the result back to the frontend.
const (
	ModeRedirect = "redirect"
	ModePopup    = "popup"
)

const stateReplayKeyPrefix = "auth:sso:state:"

// StateCodec encodes and decodes SSO state payloads used during external auth flows.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// StatePayload captures data required to validate the callback and resume the login flow.
type StatePayload struct {
	Provider string    `json:"p"`
	Mode     string    `json:"m"`
	Nonce    string    `json:"n"`
	PKCE     string    `json:"k"`
	IssuedAt time.Time `json:"iat"`
}

// NewStateCodec constructs a StateCodec using the provided symmetric encryption key and lifetime.
func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	length := len(key)
	if length != 16 && length != 24 && length != 32 {
		return nil, fmt.Errorf("sso state: key must be 16, 24, or 32 bytes, got %d", length)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{key: key, ttl: ttl, now: now}, nil
}

// TTL reports how long an encoded state stays valid.
func (c *StateCodec) TTL() time.Duration {
	return c.ttl
}

// Encode encrypts the supplied payload into a compact state string.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("sso state: provider is required")
	}
	if payload.Nonce == "" || payload.PKCE == "" {
		return "", errors.New("sso state: nonce and pkce verifier are required")
	}
	if payload.Mode != ModePopup {
		payload.Mode = ModeRedirect
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sso state: marshal payload: %w", err)
	}

	sealed, err := crypto.Seal(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("sso state: encrypt payload: %w", err)
	}
	return sealed, nil
}

// Decode decrypts the state string back into a payload while enforcing expiry.
func (c *StateCodec) Decode(token string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(token) == "" {
		return payload, ErrStateInvalid
	}

	raw, err := crypto.Open(token, c.key)
	if err != nil {
		return payload, ErrStateInvalid
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrStateInvalid
	}
	if payload.Provider == "" || payload.Nonce == "" || payload.IssuedAt.IsZero() {
		return payload, ErrStateInvalid
	}
	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, ErrStateExpired
	}
	return payload, nil
}

// StateGuard records consumed state nonces so a callback cannot be replayed.
type StateGuard struct {
	store cache.Store
	ttl   time.Duration
}

// NewStateGuard returns a guard that remembers nonces for ttl.
func NewStateGuard(store cache.Store, ttl time.Duration) *StateGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateGuard{store: store, ttl: ttl}
}

// Consume marks the payload's nonce as used. A second call for the same nonce
// fails with ErrStateReplayed.
func (g *StateGuard) Consume(ctx context.Context, payload StatePayload) error {
	if g == nil || g.store == nil {
		return nil
	}
	stored, err := g.store.SetNX(ctx, stateReplayKeyPrefix+crypto.HashToken(payload.Nonce), []byte("1"), g.ttl)
	if err != nil {
		return fmt.Errorf("sso state: record nonce: %w", err)
	}
	if !stored {
		return ErrStateReplayed
	}
	return nil
}
