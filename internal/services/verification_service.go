package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/database"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/workflow"
	"github.com/charlesng35/verifolio/pkg/crypto"
	"github.com/charlesng35/verifolio/pkg/logger"
	"github.com/charlesng35/verifolio/pkg/mail"
	"github.com/charlesng35/verifolio/pkg/metrics"
	"github.com/charlesng35/verifolio/pkg/validator"
)

const (
	// DefaultVerificationTokenTTL bounds how long a verification link stays usable.
	DefaultVerificationTokenTTL = 14 * 24 * time.Hour
	verificationTokenBytes      = 48
)

// VerificationConfig tunes link generation.
type VerificationConfig struct {
	BaseURL  string
	TokenTTL time.Duration
	Clock    func() time.Time
}

// VerificationOption customises a VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationMailer sends each new link to the named verifier.
func WithVerificationMailer(mailer mail.Mailer) VerificationOption {
	return func(s *VerificationService) {
		s.mailer = mailer
	}
}

// WithVerificationInvalidator publishes events after committed transitions.
func WithVerificationInvalidator(inv workflow.Invalidator) VerificationOption {
	return func(s *VerificationService) {
		if inv != nil {
			s.invalidator = inv
		}
	}
}

// IssuedVerification is returned from Create. Link embeds the raw capability
// token, which is never stored and cannot be recovered later.
type IssuedVerification struct {
	Request *models.VerificationRequest
	Link    string
	Resent  bool
}

// VerificationView is what a verifier sees when opening a link.
type VerificationView struct {
	Request *models.VerificationRequest
	Subject models.Claim
}

// VerificationService implements the content verification workflow.
type VerificationService struct {
	db          *gorm.DB
	audit       *AuditService
	mailer      mail.Mailer
	invalidator workflow.Invalidator
	baseURL     string
	ttl         time.Duration
	now         func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(db *gorm.DB, audit *AuditService, cfg VerificationConfig, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("verification service: base url is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultVerificationTokenTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	svc := &VerificationService{
		db:          db,
		audit:       audit,
		invalidator: workflow.Discard,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		ttl:         cfg.TokenTTL,
		now:         func() time.Time { return cfg.Clock().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create asks verifierEmail to vouch for the requester's claim. While a
// request for the claim is pending, asking the same verifier again rotates
// the link on that request; asking someone else fails with REQUEST_PENDING.
func (s *VerificationService) Create(ctx context.Context, requester *models.User, subjectType models.SubjectType, subjectID, verifierEmail string) (*IssuedVerification, error) {
	ctx = ensureContext(ctx)
	if requester == nil {
		return nil, workflow.ErrForbidden
	}

	email := models.NormalizeEmail(verifierEmail)
	if err := validator.ValidateVar(email, "required,email"); err != nil {
		return nil, workflow.ErrNoEligibleApprover.WithMessage("A valid verifier email is required")
	}
	if email == requester.Email {
		return nil, workflow.ErrNoEligibleApprover.WithMessage("You cannot verify your own claim")
	}

	claim, err := loadClaim(ctx, s.db, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	if claim.ClaimOwner() != requester.ID {
		return nil, workflow.ErrNotOwner
	}
	if claim.IsVerified() {
		return nil, ErrClaimVerified
	}

	snapshot, err := snapshotClaim(claim)
	if err != nil {
		return nil, err
	}

	token, err := crypto.GenerateToken(verificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("verification service: generate token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	activeKey := models.VerificationActiveKey(subjectType, claim.ClaimID())

	var (
		request *models.VerificationRequest
		resent  bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.VerificationRequest
		err := tx.Where("active_key = ?", activeKey).Take(&existing).Error
		switch {
		case err == nil && existing.Expired(now):
			if err := workflow.Resolve(tx, &models.VerificationRequest{}, existing.ID, workflow.StatusRejected, map[string]any{
				"reason":      "expired",
				"resolved_at": now,
			}); err != nil && !workflow.IsAlreadyResolved(err) {
				return err
			}
		case err == nil:
			if existing.VerifierEmail != email {
				return workflow.ErrRequestPending.WithMessage("A verification request for this item is already pending")
			}
			if err := tx.Model(&existing).Updates(map[string]any{
				"token_hash":       crypto.HashToken(token),
				"expires_at":       expiresAt,
				"subject_snapshot": datatypes.JSON(snapshot),
			}).Error; err != nil {
				return fmt.Errorf("verification service: rotate token: %w", err)
			}
			existing.ExpiresAt = &expiresAt
			request = &existing
			resent = true
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("verification service: find pending: %w", err)
		}

		request = &models.VerificationRequest{
			SubjectType:     subjectType,
			SubjectID:       claim.ClaimID(),
			RequesterID:     requester.ID,
			VerifierEmail:   email,
			Status:          workflow.StatusPending,
			TokenHash:       crypto.HashToken(token),
			SubjectSnapshot: datatypes.JSON(snapshot),
			ExpiresAt:       &expiresAt,
			ActiveKey:       &activeKey,
		}
		if err := tx.Create(request).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return workflow.ErrRequestPending.WithMessage("A verification request for this item is already pending")
			}
			return fmt.Errorf("verification service: create request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	link := s.baseURL + "/verify/" + token
	s.notifyVerifier(ctx, requester, claim, email, link)

	metrics.WorkflowTransitions.WithLabelValues("verification", string(workflow.StatusPending)).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &requester.ID,
		Actor:    requester.Email,
		Action:   "verification.request",
		Resource: "verification:" + request.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"subject_type": subjectType, "subject_id": claim.ClaimID(), "verifier_email": email, "resent": resent},
	})
	s.invalidator.Publish(ctx, workflow.Event{
		Topic:     workflow.TopicVerification,
		RequestID: request.ID,
		SubjectID: claim.ClaimID(),
		Status:    workflow.StatusPending,
		UserIDs:   s.recipients(ctx, request),
	})

	return &IssuedVerification{Request: request, Link: link, Resent: resent}, nil
}

func (s *VerificationService) notifyVerifier(ctx context.Context, requester *models.User, claim models.Claim, email, link string) {
	if s.mailer == nil {
		return
	}
	name := requester.DisplayName
	if name == "" {
		name = requester.Email
	}
	body := fmt.Sprintf("%s asked you to verify: %s\n\nReview it here:\n%s\n\nThe link expires in %d days.\n",
		name, claim.Summary(), link, int(s.ttl.Hours()/24))

	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{email},
		ReplyTo: requester.Email,
		Subject: "Verification request from " + name,
		Body:    body,
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		logger.WithModule("verification").Warn("failed to send verification email",
			zap.String("verifier", email),
			zap.Error(err),
		)
	}
}

// Lookup resolves a capability token. Expired pending links read as not found.
func (s *VerificationService) Lookup(ctx context.Context, token string) (*VerificationView, error) {
	ctx = ensureContext(ctx)

	request, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	subject, err := loadClaim(ctx, s.db, request.SubjectType, request.SubjectID)
	if err != nil {
		return nil, err
	}
	return &VerificationView{Request: request, Subject: subject}, nil
}

// ApproveByToken approves the request the token grants access to.
func (s *VerificationService) ApproveByToken(ctx context.Context, token string, actor *models.User) (*models.VerificationRequest, error) {
	request, err := s.findByToken(ensureContext(ctx), token)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, request, workflow.DecisionApprove, "", actor)
}

// RejectByToken rejects the request the token grants access to.
func (s *VerificationService) RejectByToken(ctx context.Context, token, reason string, actor *models.User) (*models.VerificationRequest, error) {
	request, err := s.findByToken(ensureContext(ctx), token)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, request, workflow.DecisionReject, reason, actor)
}

// Respond lets an authenticated user whose email matches the addressed
// verifier approve or reject without the link.
func (s *VerificationService) Respond(ctx context.Context, actor *models.User, id string, decision workflow.Decision, reason string) (*models.VerificationRequest, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, workflow.ErrForbidden
	}

	var request models.VerificationRequest
	err := s.db.WithContext(ctx).Take(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verification service: load request: %w", err)
	}
	if request.VerifierEmail != actor.Email {
		return nil, workflow.ErrForbidden.WithMessage("This request is addressed to a different verifier")
	}
	if request.Status == workflow.StatusPending && request.Expired(s.now()) {
		return nil, workflow.ErrNotFound
	}
	return s.resolve(ctx, &request, decision, reason, actor)
}

// resolve applies decision. The request status and the claim's verified flag
// are written in one transaction. On ALREADY_RESOLVED the current request is
// returned alongside the error.
func (s *VerificationService) resolve(ctx context.Context, request *models.VerificationRequest, decision workflow.Decision, reason string, actor *models.User) (*models.VerificationRequest, error) {
	ctx = ensureContext(ctx)
	target := decision.Target()
	now := s.now()

	updates := map[string]any{"resolved_at": now}
	if actor != nil {
		updates["resolved_by"] = actor.ID
	}
	if decision == workflow.DecisionReject {
		updates["reason"] = strings.TrimSpace(reason)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := workflow.Resolve(tx, &models.VerificationRequest{}, request.ID, target, updates); err != nil {
			return err
		}
		if target != workflow.StatusApproved {
			return nil
		}
		claim := request.SubjectType.NewClaim()
		if claim == nil {
			return fmt.Errorf("verification service: unknown subject type %q", request.SubjectType)
		}
		result := tx.Model(claim).
			Where("id = ?", request.SubjectID).
			Updates(map[string]any{"verified": true, "verified_at": now})
		if result.Error != nil {
			return fmt.Errorf("verification service: mark claim verified: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return workflow.ErrNotFound.WithMessage("Claim not found")
		}
		return nil
	})

	current, loadErr := s.reload(ctx, request.ID)
	if err != nil {
		if workflow.IsAlreadyResolved(err) && loadErr == nil {
			return current, err
		}
		return nil, err
	}
	if loadErr != nil {
		return nil, loadErr
	}

	metrics.WorkflowTransitions.WithLabelValues("verification", string(target)).Inc()
	entry := AuditEntry{
		Action:   "verification." + string(decision),
		Resource: "verification:" + current.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"subject_type": current.SubjectType, "subject_id": current.SubjectID},
	}
	if actor != nil {
		entry.UserID = &actor.ID
		entry.Actor = actor.Email
	} else {
		entry.Actor = current.VerifierEmail
	}
	recordAudit(s.audit, ctx, entry)
	s.invalidator.Publish(ctx, workflow.Event{
		Topic:     workflow.TopicVerification,
		RequestID: current.ID,
		SubjectID: current.SubjectID,
		Status:    target,
		UserIDs:   s.recipients(ctx, current),
	})

	return current, nil
}

func (s *VerificationService) findByToken(ctx context.Context, token string) (*models.VerificationRequest, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, workflow.ErrNotFound
	}

	var request models.VerificationRequest
	err := s.db.WithContext(ctx).Take(&request, "token_hash = ?", crypto.HashToken(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verification service: find by token: %w", err)
	}
	if request.Status == workflow.StatusPending && request.Expired(s.now()) {
		return nil, workflow.ErrNotFound.WithMessage("This verification link has expired")
	}
	return &request, nil
}

func (s *VerificationService) reload(ctx context.Context, id string) (*models.VerificationRequest, error) {
	var request models.VerificationRequest
	if err := s.db.WithContext(ctx).Take(&request, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("verification service: reload request: %w", err)
	}
	return &request, nil
}

// recipients are the requester plus the verifier's account when one exists.
func (s *VerificationService) recipients(ctx context.Context, request *models.VerificationRequest) []string {
	ids := []string{request.RequesterID}
	var verifierIDs []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", request.VerifierEmail).
		Pluck("id", &verifierIDs).Error; err == nil {
		ids = append(ids, verifierIDs...)
	}
	return ids
}

// ListPending returns live requests addressed to verifierEmail.
func (s *VerificationService) ListPending(ctx context.Context, verifierEmail string) ([]models.VerificationRequest, error) {
	ctx = ensureContext(ctx)

	var requests []models.VerificationRequest
	err := s.db.WithContext(ctx).
		Preload("Requester").
		Where("verifier_email = ? AND status = ?", models.NormalizeEmail(verifierEmail), workflow.StatusPending).
		Where("expires_at IS NULL OR expires_at > ?", s.now()).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("verification service: list pending: %w", err)
	}
	return requests, nil
}

// ListMine returns every request the user has issued, newest first.
func (s *VerificationService) ListMine(ctx context.Context, requesterID string) ([]models.VerificationRequest, error) {
	ctx = ensureContext(ctx)

	var requests []models.VerificationRequest
	err := s.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("verification service: list mine: %w", err)
	}
	return requests, nil
}

// ExpireStale rejects pending requests whose link has expired, freeing the
// claim for a new request. It returns how many were rejected.
func (s *VerificationService) ExpireStale(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	var stale []models.VerificationRequest
	if err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", workflow.StatusPending, now).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("verification service: find stale: %w", err)
	}

	var expired int64
	for i := range stale {
		request := &stale[i]
		err := workflow.Resolve(s.db.WithContext(ctx), &models.VerificationRequest{}, request.ID, workflow.StatusRejected, map[string]any{
			"reason":      "expired",
			"resolved_at": now,
		})
		if workflow.IsAlreadyResolved(err) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		metrics.WorkflowTransitions.WithLabelValues("verification", string(workflow.StatusRejected)).Inc()
		s.invalidator.Publish(ctx, workflow.Event{
			Topic:     workflow.TopicVerification,
			RequestID: request.ID,
			SubjectID: request.SubjectID,
			Status:    workflow.StatusRejected,
			UserIDs:   s.recipients(ctx, request),
		})
	}
	return expired, nil
}
