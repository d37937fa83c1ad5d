package models

import (
	"time"

	"github.com/charlesng35/verifolio/internal/workflow"
)

// AssociationRequest links a user to an institute. Rejected rows are kept as
// history; resubmission inserts a new row.
type AssociationRequest struct {
	BaseModel

	StudentID       string          `gorm:"type:uuid;not null;index" json:"student_id"`
	Student         *User           `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Institute       string          `gorm:"not null;index" json:"institute"`
	RequestedRole   Role            `gorm:"type:varchar(32);not null" json:"requested_role"`
	Status          workflow.Status `gorm:"type:varchar(16);not null;index" json:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	Response        string          `json:"response,omitempty"`
	RespondedBy     *string         `gorm:"type:uuid" json:"responded_by,omitempty"`
	RespondedAt     *time.Time      `json:"responded_at,omitempty"`

	// ActiveKey holds the student id while the request is non-terminal.
	ActiveKey *string `gorm:"uniqueIndex" json:"-"`
}
