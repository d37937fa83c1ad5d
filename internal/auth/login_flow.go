package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/pkg/crypto"
)

// LoginResult is the outcome of a completed provider login.
type LoginResult struct {
	Token   string
	User    *models.User
	Session *models.Session
	Mode    string
}

// LoginFlow drives the authorization code flow with PKCE against a provider:
// Begin produces the authorization URL, Complete redeems the code.
type LoginFlow struct {
	provider providers.Provider
	codec    *StateCodec
	guard    *StateGuard
	manager  *SSOManager
}

// NewLoginFlow wires the flow collaborators. guard may be nil.
func NewLoginFlow(provider providers.Provider, codec *StateCodec, guard *StateGuard, manager *SSOManager) (*LoginFlow, error) {
	if provider == nil {
		return nil, errors.New("login flow: provider is required")
	}
	if codec == nil {
		return nil, errors.New("login flow: state codec is required")
	}
	if manager == nil {
		return nil, errors.New("login flow: sso manager is required")
	}
	return &LoginFlow{provider: provider, codec: codec, guard: guard, manager: manager}, nil
}

// Provider returns the configured identity provider name.
func (f *LoginFlow) Provider() string {
	return f.provider.Name()
}

// Begin returns the provider authorization URL for a new login attempt.
func (f *LoginFlow) Begin(mode string) (string, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return "", err
	}
	nonce, err := crypto.GenerateToken(24)
	if err != nil {
		return "", fmt.Errorf("login flow: generate nonce: %w", err)
	}

	state, err := f.codec.Encode(StatePayload{
		Provider: f.provider.Name(),
		Mode:     mode,
		Nonce:    nonce,
		PKCE:     pkce.Verifier,
	})
	if err != nil {
		return "", err
	}

	return f.provider.AuthCodeURL(providers.BeginAuthRequest{
		State:         state,
		Nonce:         nonce,
		PKCEChallenge: pkce.Challenge,
		Prompt:        "select_account",
	})
}

// DecodeState exposes the state payload, used to learn the login mode
// before the code is redeemed.
func (f *LoginFlow) DecodeState(state string) (StatePayload, error) {
	return f.codec.Decode(state)
}

// Complete validates state, redeems code exactly once and issues a session.
func (f *LoginFlow) Complete(ctx context.Context, code, state string, meta SessionMetadata) (*LoginResult, error) {
	payload, err := f.codec.Decode(state)
	if err != nil {
		return nil, err
	}
	if payload.Provider != f.provider.Name() {
		return nil, ErrStateInvalid
	}
	if err := f.guard.Consume(ctx, payload); err != nil {
		return nil, err
	}

	identity, err := f.provider.Exchange(ctx, providers.CallbackRequest{
		Code:          code,
		PKCEVerifier:  payload.PKCE,
		ExpectedNonce: payload.Nonce,
	})
	if err != nil {
		return nil, err
	}

	meta.Provider = f.provider.Name()
	token, user, session, err := f.manager.Resolve(ctx, *identity, meta)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, User: user, Session: session, Mode: payload.Mode}, nil
}
