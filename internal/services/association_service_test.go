package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/workflow"
	apperrors "github.com/charlesng35/verifolio/pkg/errors"
)

func newAssociationService(t *testing.T) (*AssociationService, *recordingInvalidator, *UserService) {
	t.Helper()
	db := openServiceTestDB(t)
	inv := &recordingInvalidator{}
	svc, err := NewAssociationService(db, nil, inv)
	require.NoError(t, err)
	users, err := NewUserService(db, nil, nil)
	require.NoError(t, err)
	return svc, inv, users
}

func TestAssociationVerifierIsApprovedImmediately(t *testing.T) {
	svc, _, users := newAssociationService(t)
	ctx := context.Background()
	verifier := createUser(t, svc.db, "prof@mit.edu", models.RoleVerifier, "")

	status, err := svc.CurrentStatus(ctx, verifier.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusNone, status)

	request, err := svc.Request(ctx, verifier, " MIT ", "")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, request.Status)
	require.Nil(t, request.ActiveKey)

	reloaded, err := users.GetByID(ctx, verifier.ID)
	require.NoError(t, err)
	require.Equal(t, "MIT", reloaded.InstituteName())

	status, err = svc.CurrentStatus(ctx, verifier.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, status)
}

func TestAssociationStudentNeedsEligibleVerifier(t *testing.T) {
	svc, _, _ := newAssociationService(t)
	student := createUser(t, svc.db, "kid@example.com", models.RoleStudent, "")

	_, err := svc.Request(context.Background(), student, "Nowhere College", models.RoleStudent)
	require.ErrorIs(t, err, workflow.ErrNoEligibleApprover)
}

func TestAssociationRequestValidation(t *testing.T) {
	svc, _, _ := newAssociationService(t)
	ctx := context.Background()

	unset := createUser(t, svc.db, "unset@example.com", "", "")
	_, err := svc.Request(ctx, unset, "MIT", "")
	require.ErrorIs(t, err, ErrRoleRequired)

	student := createUser(t, svc.db, "s@example.com", models.RoleStudent, "")
	_, err = svc.Request(ctx, student, "MIT", models.RoleVerifier)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = svc.Request(ctx, student, "   ", models.RoleStudent)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestAssociationStudentFlow(t *testing.T) {
	svc, inv, users := newAssociationService(t)
	ctx := context.Background()

	verifier := createUser(t, svc.db, "prof@mit.edu", models.RoleVerifier, "MIT")
	outsider := createUser(t, svc.db, "prof@cmu.edu", models.RoleVerifier, "CMU")
	student := createUser(t, svc.db, "kid@mit.edu", models.RoleStudent, "")

	request, err := svc.Request(ctx, student, "mit", models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, request.Status)
	require.Contains(t, inv.events[0].UserIDs, verifier.ID)

	_, err = svc.Request(ctx, student, "MIT", models.RoleStudent)
	require.ErrorIs(t, err, workflow.ErrRequestPending)

	pending, err := svc.ListPending(ctx, verifier)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Student)

	otherPending, err := svc.ListPending(ctx, outsider)
	require.NoError(t, err)
	require.Empty(t, otherPending)

	_, err = svc.ListPending(ctx, student)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = svc.Respond(ctx, outsider, request.ID, workflow.DecisionApprove, "")
	require.ErrorIs(t, err, workflow.ErrForbidden)
	_, err = svc.Respond(ctx, student, request.ID, workflow.DecisionApprove, "")
	require.ErrorIs(t, err, workflow.ErrForbidden)

	approved, err := svc.Respond(ctx, verifier, request.ID, workflow.DecisionApprove, "welcome")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, approved.Status)
	require.Equal(t, "welcome", approved.Response)

	reloaded, err := users.GetByID(ctx, student.ID)
	require.NoError(t, err)
	require.Equal(t, "mit", reloaded.InstituteName())

	again, err := svc.Respond(ctx, verifier, request.ID, workflow.DecisionReject, "oops")
	require.ErrorIs(t, err, workflow.ErrAlreadyResolved)
	require.Equal(t, workflow.StatusApproved, again.Status)

	_, err = svc.Respond(ctx, verifier, "missing", workflow.DecisionApprove, "")
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestAssociationRejectedRequestCanBeResubmitted(t *testing.T) {
	svc, _, _ := newAssociationService(t)
	ctx := context.Background()

	verifier := createUser(t, svc.db, "prof@mit.edu", models.RoleVerifier, "MIT")
	student := createUser(t, svc.db, "kid@mit.edu", models.RoleStudent, "")

	first, err := svc.Request(ctx, student, "MIT", models.RoleStudent)
	require.NoError(t, err)

	rejected, err := svc.Respond(ctx, verifier, first.ID, workflow.DecisionReject, "unknown student")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	require.Equal(t, "unknown student", *rejected.RejectionReason)

	second, err := svc.Request(ctx, student, "MIT", models.RoleStudent)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	history, err := svc.ListMine(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}
