package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/database"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/workflow"
	apperrors "github.com/charlesng35/verifolio/pkg/errors"
	"github.com/charlesng35/verifolio/pkg/metrics"
	"github.com/charlesng35/verifolio/pkg/validator"
)

// AssociationService implements the institution association workflow.
// Verifiers join an institute immediately; students wait for a verifier of
// that institute to respond.
type AssociationService struct {
	db          *gorm.DB
	audit       *AuditService
	invalidator workflow.Invalidator
	now         func() time.Time
}

// NewAssociationService constructs an AssociationService.
func NewAssociationService(db *gorm.DB, audit *AuditService, invalidator workflow.Invalidator) (*AssociationService, error) {
	if db == nil {
		return nil, errors.New("association service: db is required")
	}
	if invalidator == nil {
		invalidator = workflow.Discard
	}
	return &AssociationService{
		db:          db,
		audit:       audit,
		invalidator: invalidator,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Request asks to associate actor with institute. requestedRole defaults to
// the actor's role and must match it.
func (s *AssociationService) Request(ctx context.Context, actor *models.User, institute string, requestedRole models.Role) (*models.AssociationRequest, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, workflow.ErrForbidden
	}

	institute = strings.TrimSpace(institute)
	if err := validator.ValidateVar(institute, "required,institute"); err != nil {
		return nil, apperrors.NewBadRequest("institute is required")
	}
	if requestedRole == "" {
		requestedRole = actor.Role
	}
	if actor.Role == "" {
		return nil, ErrRoleRequired
	}
	if !requestedRole.SelfAssignable() || requestedRole != actor.Role {
		return nil, workflow.ErrForbidden.WithMessage("Requested role must match your role")
	}
	if strings.EqualFold(actor.InstituteName(), institute) {
		return nil, apperrors.NewBadRequest("You are already associated with this institute")
	}

	var (
		request    *models.AssociationRequest
		recipients = []string{actor.ID}
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending int64
		if err := tx.Model(&models.AssociationRequest{}).
			Where("student_id = ? AND active_key IS NOT NULL", actor.ID).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("association service: count pending: %w", err)
		}
		if pending > 0 {
			return workflow.ErrRequestPending.WithMessage("You already have a pending association request")
		}

		if requestedRole == models.RoleVerifier {
			var err error
			request, err = s.selfApprove(tx, actor, institute)
			return err
		}

		verifiers, err := s.verifierIDs(tx, institute, actor.ID)
		if err != nil {
			return err
		}
		if len(verifiers) == 0 {
			return workflow.ErrNoEligibleApprover
		}
		recipients = append(recipients, verifiers...)

		key := actor.ID
		request = &models.AssociationRequest{
			StudentID:     actor.ID,
			Institute:     institute,
			RequestedRole: requestedRole,
			Status:        workflow.StatusPending,
			ActiveKey:     &key,
		}
		if err := tx.Create(request).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return workflow.ErrRequestPending.WithMessage("You already have a pending association request")
			}
			return fmt.Errorf("association service: create request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WorkflowTransitions.WithLabelValues("association", string(request.Status)).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &actor.ID,
		Actor:    actor.Email,
		Action:   "association.request",
		Resource: "association:" + request.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"institute": institute, "requested_role": requestedRole, "status": request.Status},
	})
	s.publish(ctx, request, recipients)

	return request, nil
}

// selfApprove records an immediately approved request and sets the
// verifier's institute in the same transaction.
func (s *AssociationService) selfApprove(tx *gorm.DB, actor *models.User, institute string) (*models.AssociationRequest, error) {
	if !workflow.CanTransition(workflow.StatusNone, workflow.StatusApproved) {
		return nil, fmt.Errorf("association service: self approval not permitted")
	}

	now := s.now()
	request := &models.AssociationRequest{
		StudentID:     actor.ID,
		Institute:     institute,
		RequestedRole: models.RoleVerifier,
		Status:        workflow.StatusApproved,
		RespondedBy:   &actor.ID,
		RespondedAt:   &now,
	}
	if err := tx.Create(request).Error; err != nil {
		return nil, fmt.Errorf("association service: create request: %w", err)
	}
	if err := tx.Model(&models.User{}).Where("id = ?", actor.ID).Update("institute", institute).Error; err != nil {
		return nil, fmt.Errorf("association service: set institute: %w", err)
	}
	return request, nil
}

// Respond resolves a pending request. The actor must be a verifier of the
// request's institute. On ALREADY_RESOLVED the current request is returned
// alongside the error.
func (s *AssociationService) Respond(ctx context.Context, actor *models.User, id string, decision workflow.Decision, response string) (*models.AssociationRequest, error) {
	ctx = ensureContext(ctx)
	if actor == nil || actor.Role != models.RoleVerifier || actor.InstituteName() == "" {
		return nil, workflow.ErrForbidden.WithMessage("Only verifiers of an institute can respond")
	}

	var request models.AssociationRequest
	err := s.db.WithContext(ctx).Take(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("association service: load request: %w", err)
	}
	if !strings.EqualFold(request.Institute, actor.InstituteName()) || request.StudentID == actor.ID {
		return nil, workflow.ErrForbidden.WithMessage("This request belongs to a different institute")
	}

	now := s.now()
	target := decision.Target()
	response = strings.TrimSpace(response)
	updates := map[string]any{
		"responded_by": actor.ID,
		"responded_at": now,
		"response":     response,
	}
	if decision == workflow.DecisionReject {
		updates["rejection_reason"] = trimmedPtr(response)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workflow.Resolve(tx, &models.AssociationRequest{}, request.ID, target, updates); err != nil {
			return err
		}
		if target != workflow.StatusApproved {
			return nil
		}
		return tx.Model(&models.User{}).
			Where("id = ?", request.StudentID).
			Update("institute", request.Institute).Error
	})

	var current models.AssociationRequest
	loadErr := s.db.WithContext(ctx).Take(&current, "id = ?", request.ID).Error
	if err != nil {
		if workflow.IsAlreadyResolved(err) && loadErr == nil {
			return &current, err
		}
		return nil, err
	}
	if loadErr != nil {
		return nil, fmt.Errorf("association service: reload request: %w", loadErr)
	}

	metrics.WorkflowTransitions.WithLabelValues("association", string(target)).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &actor.ID,
		Actor:    actor.Email,
		Action:   "association." + string(decision),
		Resource: "association:" + current.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"institute": current.Institute, "student_id": current.StudentID},
	})
	s.publish(ctx, &current, []string{current.StudentID, actor.ID})

	return &current, nil
}

// CurrentStatus reports the status of the user's most recent request, or
// NONE when there is none.
func (s *AssociationService) CurrentStatus(ctx context.Context, userID string) (workflow.Status, error) {
	ctx = ensureContext(ctx)

	var latest models.AssociationRequest
	err := s.db.WithContext(ctx).
		Where("student_id = ?", userID).
		Order("created_at DESC").
		Take(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.StatusNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("association service: current status: %w", err)
	}
	return latest.Status, nil
}

// ListMine returns the user's requests, newest first.
func (s *AssociationService) ListMine(ctx context.Context, userID string) ([]models.AssociationRequest, error) {
	ctx = ensureContext(ctx)

	var requests []models.AssociationRequest
	if err := s.db.WithContext(ctx).
		Where("student_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("association service: list mine: %w", err)
	}
	return requests, nil
}

// ListPending returns pending requests for the verifier's institute.
func (s *AssociationService) ListPending(ctx context.Context, actor *models.User) ([]models.AssociationRequest, error) {
	ctx = ensureContext(ctx)
	if actor == nil || actor.Role != models.RoleVerifier || actor.InstituteName() == "" {
		return nil, workflow.ErrForbidden.WithMessage("Only verifiers of an institute can review requests")
	}

	var requests []models.AssociationRequest
	if err := s.db.WithContext(ctx).
		Preload("Student").
		Where("LOWER(institute) = ? AND status = ? AND student_id <> ?",
			strings.ToLower(actor.InstituteName()), workflow.StatusPending, actor.ID).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("association service: list pending: %w", err)
	}
	return requests, nil
}

func (s *AssociationService) verifierIDs(tx *gorm.DB, institute, excludeID string) ([]string, error) {
	var ids []string
	err := tx.Model(&models.User{}).
		Where("role = ? AND LOWER(institute) = ? AND is_active = ? AND id <> ?",
			models.RoleVerifier, strings.ToLower(institute), true, excludeID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("association service: find verifiers: %w", err)
	}
	return ids, nil
}

func (s *AssociationService) publish(ctx context.Context, request *models.AssociationRequest, recipients []string) {
	s.invalidator.Publish(ctx, workflow.Event{
		Topic:     workflow.TopicAssociation,
		RequestID: request.ID,
		SubjectID: request.StudentID,
		Status:    request.Status,
		UserIDs:   recipients,
	})
	s.invalidator.Publish(ctx, workflow.Event{
		Topic:   workflow.TopicProfile,
		UserIDs: []string{request.StudentID},
	})
}
