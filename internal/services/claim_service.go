package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/models"
	apperrors "github.com/charlesng35/verifolio/pkg/errors"
)

// ClaimInput carries the union of claim fields; which ones apply depends on
// the subject type.
type ClaimInput struct {
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	Description  string     `json:"description"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	Institution  string     `json:"institution"`
	Degree       string     `json:"degree"`
	FieldOfStudy string     `json:"field_of_study"`
	StartYear    int        `json:"start_year"`
	EndYear      int        `json:"end_year"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
}

// ClaimService stores the portfolio entries that verification requests target.
type ClaimService struct {
	db *gorm.DB
}

// NewClaimService constructs a ClaimService.
func NewClaimService(db *gorm.DB) (*ClaimService, error) {
	if db == nil {
		return nil, errors.New("claim service: db is required")
	}
	return &ClaimService{db: db}, nil
}

// Create stores a new, unverified claim owned by ownerID.
func (s *ClaimService) Create(ctx context.Context, ownerID string, subjectType models.SubjectType, input ClaimInput) (models.Claim, error) {
	ctx = ensureContext(ctx)

	base := models.ClaimBase{OwnerID: ownerID}
	var claim models.Claim

	switch subjectType {
	case models.SubjectExperience:
		if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Organization) == "" {
			return nil, apperrors.NewBadRequest("title and organization are required")
		}
		claim = &models.Experience{
			ClaimBase:    base,
			Title:        strings.TrimSpace(input.Title),
			Organization: strings.TrimSpace(input.Organization),
			Description:  strings.TrimSpace(input.Description),
			StartDate:    input.StartDate,
			EndDate:      input.EndDate,
		}
	case models.SubjectEducation:
		if strings.TrimSpace(input.Institution) == "" {
			return nil, apperrors.NewBadRequest("institution is required")
		}
		claim = &models.Education{
			ClaimBase:    base,
			Institution:  strings.TrimSpace(input.Institution),
			Degree:       strings.TrimSpace(input.Degree),
			FieldOfStudy: strings.TrimSpace(input.FieldOfStudy),
			StartYear:    input.StartYear,
			EndYear:      input.EndYear,
		}
	case models.SubjectProject:
		if strings.TrimSpace(input.Name) == "" {
			return nil, apperrors.NewBadRequest("name is required")
		}
		claim = &models.Project{
			ClaimBase:   base,
			Name:        strings.TrimSpace(input.Name),
			Description: strings.TrimSpace(input.Description),
			URL:         strings.TrimSpace(input.URL),
		}
	default:
		return nil, apperrors.NewBadRequest("unknown claim type")
	}

	if err := s.db.WithContext(ctx).Create(claim).Error; err != nil {
		return nil, fmt.Errorf("claim service: create: %w", err)
	}
	return claim, nil
}

// List returns the owner's claims of one type, newest first.
func (s *ClaimService) List(ctx context.Context, ownerID string, subjectType models.SubjectType) ([]models.Claim, error) {
	ctx = ensureContext(ctx)
	query := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC")

	var out []models.Claim
	switch subjectType {
	case models.SubjectExperience:
		var rows []models.Experience
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("claim service: list: %w", err)
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
	case models.SubjectEducation:
		var rows []models.Education
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("claim service: list: %w", err)
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
	case models.SubjectProject:
		var rows []models.Project
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("claim service: list: %w", err)
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
	default:
		return nil, apperrors.NewBadRequest("unknown claim type")
	}
	return out, nil
}

// Get loads a claim by type and id.
func (s *ClaimService) Get(ctx context.Context, subjectType models.SubjectType, id string) (models.Claim, error) {
	return loadClaim(ensureContext(ctx), s.db, subjectType, id)
}

func loadClaim(ctx context.Context, db *gorm.DB, subjectType models.SubjectType, id string) (models.Claim, error) {
	claim := subjectType.NewClaim()
	if claim == nil {
		return nil, apperrors.NewBadRequest("unknown claim type")
	}
	err := db.WithContext(ctx).Take(claim, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Claim not found")
	}
	if err != nil {
		return nil, fmt.Errorf("claim service: load claim: %w", err)
	}
	return claim, nil
}

func snapshotClaim(claim models.Claim) ([]byte, error) {
	encoded, err := json.Marshal(claim)
	if err != nil {
		return nil, fmt.Errorf("claim service: snapshot: %w", err)
	}
	return encoded, nil
}
