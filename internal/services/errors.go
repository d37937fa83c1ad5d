package services

import (
	"net/http"

	apperrors "github.com/charlesng35/verifolio/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrRoleAlreadySet is returned when profile setup runs for a user who already has a role.
	ErrRoleAlreadySet = apperrors.New("ROLE_ALREADY_SET", "Role has already been chosen", http.StatusConflict)
	// ErrRoleRequired is returned when an action needs a completed profile.
	ErrRoleRequired = apperrors.New("PROFILE_INCOMPLETE", "Complete your profile before continuing", http.StatusForbidden)
	// ErrClaimVerified blocks requests against claims that are already verified.
	ErrClaimVerified = apperrors.New("CLAIM_VERIFIED", "This item is already verified", http.StatusConflict)
)
