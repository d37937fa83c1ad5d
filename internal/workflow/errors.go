package workflow

import apperrors "github.com/charlesng35/verifolio/pkg/errors"

// Workflow failures. Each maps to a stable API code and is surfaced to the
// caller as a typed result.
var (
	ErrNotOwner           = apperrors.ErrNotOwner
	ErrNoEligibleApprover = apperrors.ErrNoEligibleApprover
	ErrAlreadyResolved    = apperrors.ErrAlreadyResolved
	ErrForbidden          = apperrors.ErrForbidden
	ErrNotFound           = apperrors.ErrNotFound
	ErrRequestPending     = apperrors.ErrRequestPending
)
