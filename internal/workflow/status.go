// Package workflow holds the request/approval state machine shared by the
// content verification and institution association workflows.
package workflow

import "fmt"

// Status is the lifecycle state of a request.
type Status string

const (
	StatusNone     Status = "NONE"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether s is absorbing.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of
// NONE -> PENDING -> {APPROVED, REJECTED}. A VERIFIER association
// request skips PENDING, so NONE -> APPROVED is allowed too.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusNone:
		return to == StatusPending || to == StatusApproved
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	}
	return false
}

// Decision is an approver's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision maps the API action string to a Decision.
func ParseDecision(action string) (Decision, error) {
	switch Decision(action) {
	case DecisionApprove, DecisionReject:
		return Decision(action), nil
	}
	return "", fmt.Errorf("workflow: unknown action %q", action)
}

// Target returns the status a decision moves a pending request to.
func (d Decision) Target() Status {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusRejected
}
