package app

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/pkg/crypto"
)

// stateKeySalt domain-separates the state key from other derived keys.
var stateKeySalt = sha256.Sum256([]byte("verifolio/sso-state/v1"))

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
	Google  GoogleSettings  `mapstructure:"google"`
	State   StateSettings   `mapstructure:"state"`
}

// JWTSettings configures signed session tokens.
type JWTSettings struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// SessionSettings configures session lifetime and the browser cookie.
type SessionSettings struct {
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
	CookieDomain string        `mapstructure:"cookie_domain"`
}

// GoogleSettings configures the Google OIDC client.
type GoogleSettings struct {
	Enabled          bool     `mapstructure:"enabled"`
	Issuer           string   `mapstructure:"issuer"`
	ClientID         string   `mapstructure:"client_id"`
	ClientSecret     string   `mapstructure:"client_secret"`
	RedirectURL      string   `mapstructure:"redirect_url"`
	Scopes           []string `mapstructure:"scopes"`
	AutoProvision    bool     `mapstructure:"auto_provision"`
	SuperAdminEmails []string `mapstructure:"super_admin_emails"`
}

// StateSettings configures the sealed OAuth state parameter.
type StateSettings struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:   c.JWT.Secret,
		Issuer:   c.JWT.Issuer,
		TokenTTL: c.SessionTTL(),
	}
}

// SessionTTL returns the configured session lifetime or the default.
func (c AuthConfig) SessionTTL() time.Duration {
	if c.Session.TTL <= 0 {
		return auth.DefaultTokenTTL
	}
	return c.Session.TTL
}

// CookieName returns the session cookie name.
func (c AuthConfig) CookieName() string {
	if name := strings.TrimSpace(c.Session.CookieName); name != "" {
		return name
	}
	return "auth-token"
}

// GoogleProviderConfig converts GoogleSettings into the provider config.
func (c AuthConfig) GoogleProviderConfig() providers.GoogleConfig {
	return providers.GoogleConfig{
		Issuer:       strings.TrimSpace(c.Google.Issuer),
		ClientID:     strings.TrimSpace(c.Google.ClientID),
		ClientSecret: c.Google.ClientSecret,
		RedirectURL:  strings.TrimSpace(c.Google.RedirectURL),
		Scopes:       c.Google.Scopes,
	}
}

// SSOConfig converts GoogleSettings into the SSO manager config.
func (c AuthConfig) SSOConfig() auth.SSOConfig {
	return auth.SSOConfig{
		AutoProvision:    c.Google.AutoProvision,
		SuperAdminEmails: c.Google.SuperAdminEmails,
	}
}

// StateKey returns the AES key sealing OAuth state. A secret that already
// decodes to 16, 24 or 32 bytes is used as is; anything else is stretched
// with Argon2id.
func (c AuthConfig) StateKey() ([]byte, error) {
	secret := strings.TrimSpace(c.State.Secret)
	if secret == "" {
		return nil, fmt.Errorf("auth.state.secret is required")
	}

	decoded, err := DecodeKey(secret)
	if err != nil {
		return nil, err
	}
	switch len(decoded) {
	case 16, 24, 32:
		return decoded, nil
	}
	return crypto.DeriveKey([]byte(secret), stateKeySalt[:], crypto.DefaultArgon2Params())
}
