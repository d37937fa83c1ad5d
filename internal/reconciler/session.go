package reconciler

import (
	"net/http"
	"sync"
	"time"

	"github.com/charlesng35/verifolio/internal/authclient"
	"github.com/charlesng35/verifolio/internal/models"
)

// DefaultSessionTTL mirrors the lifetime of the auth-token cookie.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Cookie is a persisted copy of a session cookie from the client jar.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// HTTPCookie converts the copy back into a jar cookie.
func (c Cookie) HTTPCookie() *http.Cookie {
	return &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires}
}

// Session is the canonical client session. Only the Reconciler writes it;
// everyone else reads a snapshot.
type Session struct {
	Kind      authclient.Kind  `json:"kind"`
	Token     string           `json:"token,omitempty"`
	Identity  *models.Identity `json:"identity,omitempty"`
	Channel   Channel          `json:"channel"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Cookies   []Cookie         `json:"cookies,omitempty"`
	// Sources holds digests of the raw signals that produced the session.
	Sources []string `json:"sources,omitempty"`
}

// Valid reports whether the session has not expired at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

func (s *Session) consumed(key string) bool {
	if s == nil {
		return false
	}
	for _, source := range s.Sources {
		if source == key {
			return true
		}
	}
	return false
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Identity != nil {
		identity := *s.Identity
		cpy.Identity = &identity
	}
	cpy.Cookies = append([]Cookie(nil), s.Cookies...)
	cpy.Sources = append([]string(nil), s.Sources...)
	return &cpy
}

// SessionStore persists the canonical session. Load returns nil when no
// session is stored.
type SessionStore interface {
	Load() (*Session, error)
	Save(session *Session) error
	Clear() error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	session *Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone(), nil
}

func (m *MemoryStore) Save(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session.clone()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
