// Package guard gates protected client surfaces until the session has been
// reconciled and the identity holds one of the required roles.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/landing"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/reconciler"
)

// Status of a guard decision.
type Status string

const (
	StatusLoading Status = "LOADING"
	StatusOK      Status = "OK"
	StatusDenied  Status = "DENIED"
)

// Denial reasons.
const (
	ReasonUnauthenticated = "UNAUTHENTICATED"
	ReasonForbidden       = "FORBIDDEN"
)

// ErrDenied is returned by Protect when the guard denies access.
var ErrDenied = errors.New("guard: access denied")

// Decision is the result of a check.
type Decision struct {
	Status   Status
	Session  *reconciler.Session
	Reason   string
	Redirect string
	// Stale marks a decision computed after the guard was unmounted or
	// re-checked. It is never committed.
	Stale bool
}

// SessionSource reads the canonical session and performs the cookie
// re-check. *reconciler.Reconciler satisfies it.
type SessionSource interface {
	Snapshot() *reconciler.Session
	Recheck(ctx context.Context) (*reconciler.Session, error)
}

// Navigator sends the user to the login surface on denial.
type Navigator func(ctx context.Context, path string) error

// Guard holds the committed decision for one protected surface.
type Guard struct {
	source   SessionSource
	navigate Navigator
	log      *zap.Logger

	mu         sync.Mutex
	generation uint64
	decision   Decision
}

// New creates a guard in the LOADING state.
func New(source SessionSource, navigate Navigator, log *zap.Logger) (*Guard, error) {
	if source == nil {
		return nil, errors.New("guard: session source is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		source:   source,
		navigate: navigate,
		log:      log.With(zap.String("component", "guard")),
		decision: Decision{Status: StatusLoading},
	}, nil
}

// Current returns the committed decision.
func (g *Guard) Current() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Check evaluates access for roles. An empty role list admits any
// authenticated identity. When no session is cached it re-checks the cookie
// session before denying.
func (g *Guard) Check(ctx context.Context, roles ...models.Role) Decision {
	g.mu.Lock()
	g.generation++
	generation := g.generation
	g.decision = Decision{Status: StatusLoading}
	g.mu.Unlock()

	session := g.source.Snapshot()
	if session == nil {
		rechecked, err := g.source.Recheck(ctx)
		if err != nil {
			g.log.Debug("cookie re-check failed", zap.Error(err))
		} else {
			session = rechecked
		}
	}

	decision := evaluate(session, roles)
	if !g.commit(generation, decision) {
		decision.Stale = true
		return decision
	}

	if decision.Status == StatusDenied && g.navigate != nil {
		if err := g.navigate(ctx, decision.Redirect); err != nil {
			g.log.Warn("redirect failed", zap.String("path", decision.Redirect), zap.Error(err))
		}
	}
	return decision
}

// Unmount abandons any in-flight check; its result will not be committed.
func (g *Guard) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	g.decision = Decision{Status: StatusLoading}
}

// Protect runs render only when the check passes.
func (g *Guard) Protect(ctx context.Context, roles []models.Role, render func(*reconciler.Session) error) error {
	decision := g.Check(ctx, roles...)
	switch {
	case decision.Stale:
		return context.Canceled
	case decision.Status != StatusOK:
		return fmt.Errorf("%w: %s (sign in at %s)", ErrDenied, decision.Reason, decision.Redirect)
	}
	return render(decision.Session)
}

func (g *Guard) commit(generation uint64, decision Decision) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if generation != g.generation {
		return false
	}
	g.decision = decision
	return true
}

func evaluate(session *reconciler.Session, roles []models.Role) Decision {
	if session == nil {
		return Decision{Status: StatusDenied, Reason: ReasonUnauthenticated, Redirect: landing.LoginPath(roles...)}
	}
	if len(roles) > 0 && !session.Identity.HasRole(roles...) {
		return Decision{Status: StatusDenied, Session: session, Reason: ReasonForbidden, Redirect: landing.LoginPath(roles...)}
	}
	return Decision{Status: StatusOK, Session: session}
}
