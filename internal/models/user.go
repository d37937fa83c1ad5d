package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is the backend-authoritative identity record. It is created on the
// first successful sign-in and its ID never changes.
type User struct {
	BaseModel

	Email       string  `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string  `json:"name"`
	AvatarURL   string  `json:"picture,omitempty"`
	Role        Role    `gorm:"type:varchar(32);index" json:"role,omitempty"`
	Institute   *string `gorm:"index" json:"institute,omitempty"`

	AuthProvider string  `gorm:"not null;default:google;uniqueIndex:idx_users_provider_subject" json:"auth_provider"`
	AuthSubject  *string `gorm:"uniqueIndex:idx_users_provider_subject" json:"-"`

	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"-"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeSave normalises the email so lookups by verifier email match.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Institute != nil {
		trimmed := strings.TrimSpace(*u.Institute)
		if trimmed == "" {
			u.Institute = nil
		} else {
			u.Institute = &trimmed
		}
	}
	return nil
}

// InstituteName returns the affiliation or an empty string.
func (u *User) InstituteName() string {
	if u == nil || u.Institute == nil {
		return ""
	}
	return *u.Institute
}

// Identity projects the user into the read-only shape handed to clients.
func (u *User) Identity() *Identity {
	if u == nil {
		return nil
	}
	return &Identity{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.DisplayName,
		Picture:   u.AvatarURL,
		Role:      u.Role,
		Institute: u.InstituteName(),
	}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
