package reconciler

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/models"
)

// Message types exchanged between a popup and its opener.
const (
	MessageAuthSuccess = "GOOGLE_AUTH_SUCCESS"
	MessageAuthError   = "GOOGLE_AUTH_ERROR"
)

// ErrUntrustedOrigin is returned by Deliver for origins outside the
// allowlist. The message is dropped.
var ErrUntrustedOrigin = errors.New("reconciler: untrusted message origin")

// Message is a popup to opener notification.
type Message struct {
	Type       string           `json:"type"`
	Token      string           `json:"token,omitempty"`
	User       *models.Identity `json:"user,omitempty"`
	CookieAuth bool             `json:"cookieAuth,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// MessageChannel carries popup messages to their single consumer, the
// Reconciler. Every message is origin checked on delivery.
type MessageChannel struct {
	allowed map[string]struct{}
	ch      chan Message
	log     *zap.Logger
}

// NewMessageChannel accepts messages from the given origins only.
func NewMessageChannel(allowedOrigins []string, buffer int, log *zap.Logger) *MessageChannel {
	if buffer <= 0 {
		buffer = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if normalized, ok := NormalizeOrigin(origin); ok {
			allowed[normalized] = struct{}{}
		}
	}
	return &MessageChannel{
		allowed: allowed,
		ch:      make(chan Message, buffer),
		log:     log.With(zap.String("component", "message_channel")),
	}
}

// Trusted reports whether origin is on the allowlist.
func (m *MessageChannel) Trusted(origin string) bool {
	normalized, ok := NormalizeOrigin(origin)
	if !ok {
		return false
	}
	_, trusted := m.allowed[normalized]
	return trusted
}

// Deliver queues msg after validating origin. It blocks while the buffer is
// full until ctx is done.
func (m *MessageChannel) Deliver(ctx context.Context, origin string, msg Message) error {
	if !m.Trusted(origin) {
		m.log.Warn("dropping message",
			zap.String("reason", ReasonUntrustedOrigin),
			zap.String("origin", origin),
			zap.String("type", msg.Type),
		)
		return ErrUntrustedOrigin
	}

	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MessageChannel) messages() <-chan Message {
	return m.ch
}

// NormalizeOrigin reduces origin to lower-case scheme://host[:port].
func NormalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host), true
}
