package models

import (
	"strings"
	"time"
)

// SubjectType names the kind of claim a verification request targets.
type SubjectType string

const (
	SubjectExperience SubjectType = "EXPERIENCE"
	SubjectEducation  SubjectType = "EDUCATION"
	SubjectProject    SubjectType = "PROJECT"
)

// ParseSubjectType accepts the route forms used by clients
// ("experience", "experiences", "EXPERIENCE").
func ParseSubjectType(value string) (SubjectType, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.TrimSuffix(v, "S")
	switch SubjectType(v) {
	case SubjectExperience, SubjectEducation, SubjectProject:
		return SubjectType(v), true
	}
	return "", false
}

// NewClaim returns an empty model for the subject type.
func (t SubjectType) NewClaim() Claim {
	switch t {
	case SubjectExperience:
		return &Experience{}
	case SubjectEducation:
		return &Education{}
	case SubjectProject:
		return &Project{}
	}
	return nil
}

// Claim is implemented by every verifiable portfolio entry.
type Claim interface {
	ClaimID() string
	ClaimOwner() string
	IsVerified() bool
	Summary() string
}

// ClaimBase carries the verification fields shared by all claims. Verified
// and VerifiedAt are written only by an approved verification request.
type ClaimBase struct {
	BaseModel

	OwnerID    string     `gorm:"type:uuid;not null;index" json:"owner_id"`
	Verified   bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

func (c *ClaimBase) ClaimID() string    { return c.ID }
func (c *ClaimBase) ClaimOwner() string { return c.OwnerID }
func (c *ClaimBase) IsVerified() bool   { return c.Verified }

// Experience is a professional position held by the owner.
type Experience struct {
	ClaimBase

	Title        string     `gorm:"not null" json:"title"`
	Organization string     `gorm:"not null" json:"organization"`
	Description  string     `json:"description"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

func (e *Experience) Summary() string {
	return e.Title + " at " + e.Organization
}

// Education is a degree or course of study.
type Education struct {
	ClaimBase

	Institution  string `gorm:"not null" json:"institution"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study"`
	StartYear    int    `json:"start_year,omitempty"`
	EndYear      int    `json:"end_year,omitempty"`
}

func (e *Education) Summary() string {
	if e.Degree == "" {
		return e.Institution
	}
	return e.Degree + ", " + e.Institution
}

// Project is a piece of work the owner wants vouched for.
type Project struct {
	ClaimBase

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

func (p *Project) Summary() string {
	return p.Name
}
