package workflow

import "context"

// Topics published after a committed transition.
const (
	TopicVerification = "verification"
	TopicAssociation  = "association"
	TopicProfile      = "profile"
)

// Event tells subscribed clients which cached views to refetch.
type Event struct {
	Topic     string `json:"topic"`
	RequestID string `json:"request_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	Status    Status `json:"status,omitempty"`
	// UserIDs are the recipients; the hub never sends an event to others.
	UserIDs []string `json:"-"`
}

// Invalidator receives events once the transaction carrying the transition
// has committed.
type Invalidator interface {
	Publish(ctx context.Context, event Event)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, event Event)

func (f InvalidatorFunc) Publish(ctx context.Context, event Event) { f(ctx, event) }

// Discard drops every event.
var Discard Invalidator = InvalidatorFunc(func(context.Context, Event) {})
