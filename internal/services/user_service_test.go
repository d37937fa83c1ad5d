package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/workflow"
	apperrors "github.com/charlesng35/verifolio/pkg/errors"
)

func TestUserServiceChooseRole(t *testing.T) {
	db := openServiceTestDB(t)
	inv := &recordingInvalidator{}
	svc, err := NewUserService(db, nil, inv)
	require.NoError(t, err)
	ctx := context.Background()

	user := createUser(t, db, "new@example.com", "", "")

	_, err = svc.ChooseRole(ctx, user.ID, models.RoleSuperAdmin)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	updated, err := svc.ChooseRole(ctx, user.ID, models.RoleVerifier)
	require.NoError(t, err)
	require.Equal(t, models.RoleVerifier, updated.Role)
	require.Equal(t, []string{workflow.TopicProfile}, inv.topics())

	_, err = svc.ChooseRole(ctx, user.ID, models.RoleStudent)
	require.ErrorIs(t, err, ErrRoleAlreadySet)

	_, err = svc.ChooseRole(ctx, "missing", models.RoleStudent)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceLookups(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db, nil, nil)
	require.NoError(t, err)

	user := createUser(t, db, "Lookup@Example.com", models.RoleStudent, "")

	byEmail, err := svc.GetByEmail(context.Background(), " LOOKUP@example.com ")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)

	byID, err := svc.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, "lookup@example.com", byID.Email)
}
