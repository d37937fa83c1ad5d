package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/charlesng35/verifolio/internal/workflow"
)

// VerificationRequest asks the holder of VerifierEmail to vouch for a claim.
// Only the SHA-256 of the capability token is stored.
type VerificationRequest struct {
	BaseModel

	SubjectType   SubjectType     `gorm:"type:varchar(16);not null;index:idx_verification_subject" json:"subject_type"`
	SubjectID     string          `gorm:"type:uuid;not null;index:idx_verification_subject" json:"subject_id"`
	RequesterID   string          `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester     *User           `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	VerifierEmail string          `gorm:"not null;index" json:"verifier_email"`
	Status        workflow.Status `gorm:"type:varchar(16);not null;index" json:"status"`
	TokenHash     string          `gorm:"uniqueIndex;not null" json:"-"`
	Reason        string          `json:"reason,omitempty"`

	SubjectSnapshot datatypes.JSON `json:"subject_snapshot,omitempty"`

	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy *string    `gorm:"type:uuid" json:"resolved_by,omitempty"`

	// ActiveKey is set while the request is pending and cleared on
	// resolution; its unique index allows one live request per claim.
	ActiveKey *string `gorm:"uniqueIndex" json:"-"`
}

// VerificationActiveKey builds the ActiveKey for a claim.
func VerificationActiveKey(subjectType SubjectType, subjectID string) string {
	return string(subjectType) + ":" + subjectID
}

// Expired reports whether the capability token can no longer be used.
func (r *VerificationRequest) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}
