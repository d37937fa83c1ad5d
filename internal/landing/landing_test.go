package landing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/models"
)

func TestRoute(t *testing.T) {
	cases := []struct {
		name     string
		identity *models.Identity
		want     string
	}{
		{"nil identity", nil, ProfileSetup},
		{"super admin", &models.Identity{Role: models.RoleSuperAdmin}, SuperAdminDashboard},
		{"institute admin", &models.Identity{Role: models.RoleInstituteAdmin}, InstituteAdminDashboard},
		{"verifier", &models.Identity{Role: models.RoleVerifier, Institute: "MIT"}, VerifierDashboard},
		{"student", &models.Identity{Role: models.RoleStudent}, StudentDashboard},
		{"unset role", &models.Identity{Email: "new@example.com"}, ProfileSetup},
		{"unknown role", &models.Identity{Role: models.Role("JANITOR")}, ProfileSetup},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Route(tc.identity))
		})
	}
}

func TestLoginPath(t *testing.T) {
	require.Equal(t, UserLoginPath, LoginPath())
	require.Equal(t, UserLoginPath, LoginPath(models.RoleVerifier))
	require.Equal(t, UserLoginPath, LoginPath(models.RoleSuperAdmin, models.RoleStudent))
	require.Equal(t, AdminLoginPath, LoginPath(models.RoleSuperAdmin))
	require.Equal(t, AdminLoginPath, LoginPath(models.RoleSuperAdmin, models.RoleInstituteAdmin))
}
