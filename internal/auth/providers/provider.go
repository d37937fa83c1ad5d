package providers

import (
	"context"
	"errors"
)

var (
	// ErrCodeRejected is returned when the identity provider refused the
	// authorization code (invalid, expired or already redeemed).
	ErrCodeRejected = errors.New("provider: authorization code rejected")
	// ErrNonceMismatch signals an ID token minted for a different login attempt.
	ErrNonceMismatch = errors.New("provider: nonce mismatch")
)

// BeginAuthRequest carries the values bound into the authorization URL.
type BeginAuthRequest struct {
	State         string
	Nonce         string
	PKCEChallenge string
	Prompt        string
}

// CallbackRequest carries the authorization code and the values recovered
// from the state token.
type CallbackRequest struct {
	Code          string
	PKCEVerifier  string
	ExpectedNonce string
}

// Identity represents the claims returned from an external authentication provider.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	HostedDomain  string
	RawClaims     map[string]any
}

// Provider is an interactive OAuth2/OIDC identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(req BeginAuthRequest) (string, error)
	Exchange(ctx context.Context, req CallbackRequest) (*Identity, error)
}
