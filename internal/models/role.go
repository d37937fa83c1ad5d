package models

import "strings"

// Role is the platform role carried by an identity. The empty value means
// the user has not completed profile setup.
type Role string

const (
	RoleStudent        Role = "STUDENT"
	RoleVerifier       Role = "VERIFIER"
	RoleInstituteAdmin Role = "INSTITUTE_ADMIN"
	RoleSuperAdmin     Role = "SUPER_ADMIN"
)

var knownRoles = map[Role]struct{}{
	RoleStudent:        {},
	RoleVerifier:       {},
	RoleInstituteAdmin: {},
	RoleSuperAdmin:     {},
}

// ParseRole normalises case and whitespace and reports whether the value
// names a known role.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := knownRoles[role]
	return role, ok
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// IsAdmin reports whether r is an administrative role.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleInstituteAdmin
}

// SelfAssignable reports whether a user may pick r during profile setup.
func (r Role) SelfAssignable() bool {
	return r == RoleStudent || r == RoleVerifier
}
