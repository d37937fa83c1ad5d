package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/workflow"
	apperrors "github.com/charlesng35/verifolio/pkg/errors"
)

// UserService reads users and applies the self-service profile changes.
type UserService struct {
	db          *gorm.DB
	audit       *AuditService
	invalidator workflow.Invalidator
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, audit *AuditService, invalidator workflow.Invalidator) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if invalidator == nil {
		invalidator = workflow.Discard
	}
	return &UserService{db: db, audit: audit, invalidator: invalidator}, nil
}

// GetByID loads an active or inactive user by id.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// GetByEmail loads a user by normalised email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", models.NormalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user by email: %w", err)
	}
	return &user, nil
}

// ChooseRole completes profile setup. Only STUDENT and VERIFIER can be
// self-assigned, and only while the user has no role.
func (s *UserService) ChooseRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	ctx = ensureContext(ctx)

	if !role.SelfAssignable() {
		return nil, apperrors.NewBadRequest("role must be STUDENT or VERIFIER")
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND (role IS NULL OR role = '')", userID).
		Update("role", role)
	if result.Error != nil {
		return nil, fmt.Errorf("user service: choose role: %w", result.Error)
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, ErrRoleAlreadySet
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Actor:    user.Email,
		Action:   "profile.role",
		Resource: "user:" + user.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"role": role},
	})
	s.invalidator.Publish(ctx, workflow.Event{Topic: workflow.TopicProfile, UserIDs: []string{user.ID}})

	return user, nil
}
