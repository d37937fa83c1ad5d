// Package landing maps a resolved identity to the page it should land on.
package landing

import "github.com/charlesng35/verifolio/internal/models"

const (
	SuperAdminDashboard     = "/super-admin/dashboard"
	InstituteAdminDashboard = "/institute-admin/dashboard"
	VerifierDashboard       = "/verifier/dashboard"
	StudentDashboard        = "/student/dashboard"
	ProfileSetup            = "/profile/setup"

	UserLoginPath  = "/login"
	AdminLoginPath = "/admin/login"
)

// Route returns the landing path for identity. It is total: a nil identity
// or an unknown role lands on profile setup.
func Route(identity *models.Identity) string {
	if identity == nil {
		return ProfileSetup
	}
	switch identity.Role {
	case models.RoleSuperAdmin:
		return SuperAdminDashboard
	case models.RoleInstituteAdmin:
		return InstituteAdminDashboard
	case models.RoleVerifier:
		return VerifierDashboard
	case models.RoleStudent:
		return StudentDashboard
	default:
		return ProfileSetup
	}
}

// LoginPath returns the sign-in surface for a page guarded by required.
// Pages restricted to administrative roles use the admin login.
func LoginPath(required ...models.Role) string {
	if len(required) == 0 {
		return UserLoginPath
	}
	for _, role := range required {
		if !role.IsAdmin() {
			return UserLoginPath
		}
	}
	return AdminLoginPath
}
