package models

// Identity is the client-side projection of a User. Clients cache it until
// the next fetch or invalidation; it is never a source of truth.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture,omitempty"`
	Role      Role   `json:"role,omitempty"`
	Institute string `json:"institute,omitempty"`
}

// HasRole reports whether the identity holds any of roles. An empty list
// matches every authenticated identity.
func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}
