package authclient

import (
	"encoding/json"

	"github.com/charlesng35/verifolio/internal/models"
)

// Kind says how the session produced by a Result is carried.
type Kind int

const (
	// KindToken results carry a bearer token the caller must persist.
	KindToken Kind = iota + 1
	// KindCookie results only carry the identity; the session lives in the
	// cookie jar.
	KindCookie
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindCookie:
		return "cookie"
	default:
		return "unknown"
	}
}

// Result is raw auth material returned by the backend or relayed by a
// popup, normalised into one of two shapes.
type Result struct {
	Kind     Kind
	Token    string
	Identity *models.Identity
}

// NewResult classifies token and identity. It reports false when both are
// absent, which never counts as a successful authentication.
func NewResult(token string, identity *models.Identity) (Result, bool) {
	if identity != nil && identity.ID == "" && identity.Email == "" {
		identity = nil
	}
	switch {
	case token != "":
		return Result{Kind: KindToken, Token: token, Identity: identity}, true
	case identity != nil:
		return Result{Kind: KindCookie, Identity: identity}, true
	default:
		return Result{}, false
	}
}

// Payload is the wire shape of auth material: the backend response data,
// the redirect fragment and the popup message all use it.
type Payload struct {
	Token string           `json:"token,omitempty"`
	User  *models.Identity `json:"user,omitempty"`
}

// Result converts the payload into a classified result.
func (p Payload) Result() (Result, bool) {
	return NewResult(p.Token, p.User)
}

// ParsePayload decodes a JSON payload.
func ParsePayload(raw []byte) (Payload, error) {
	var payload Payload
	err := json.Unmarshal(raw, &payload)
	return payload, err
}
