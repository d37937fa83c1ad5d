package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/internal/database"
	"github.com/charlesng35/verifolio/internal/models"
)

var (
	// ErrSSOEmailRequired indicates the upstream identity did not supply an email address.
	ErrSSOEmailRequired = errors.New("sso manager: email is required")
	// ErrSSOEmailUnverified is returned when the provider has not verified the address.
	ErrSSOEmailUnverified = errors.New("sso manager: email is not verified")
	// ErrSSOUserNotFound is returned when the identity maps to no user and auto-provisioning is disabled.
	ErrSSOUserNotFound = errors.New("sso manager: user not found")
	// ErrSSOUserDisabled signals that the mapped account is inactive.
	ErrSSOUserDisabled = errors.New("sso manager: user disabled")
	// ErrSSOIdentityConflict is returned when the email belongs to a different provider subject.
	ErrSSOIdentityConflict = errors.New("sso manager: identity conflict")
)

// SSOConfig exposes tunable behaviour for the SSOManager.
type SSOConfig struct {
	AutoProvision bool
	// SuperAdminEmails are granted SUPER_ADMIN when first provisioned.
	SuperAdminEmails []string
	Clock            func() time.Time
}

// SSOManager maps provider identities to local users and issues sessions.
type SSOManager struct {
	db            *gorm.DB
	sessions      *SessionService
	autoProvision bool
	superAdmins   map[string]struct{}
	clock         func() time.Time
}

// NewSSOManager constructs an SSOManager.
func NewSSOManager(db *gorm.DB, sessions *SessionService, cfg SSOConfig) (*SSOManager, error) {
	if db == nil {
		return nil, errors.New("sso manager: db is required")
	}
	if sessions == nil {
		return nil, errors.New("sso manager: session service is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	admins := make(map[string]struct{}, len(cfg.SuperAdminEmails))
	for _, email := range cfg.SuperAdminEmails {
		if normalised := models.NormalizeEmail(email); normalised != "" {
			admins[normalised] = struct{}{}
		}
	}

	return &SSOManager{
		db:            db,
		sessions:      sessions,
		autoProvision: cfg.AutoProvision,
		superAdmins:   admins,
		clock:         clock,
	}, nil
}

// Resolve maps identity to a local user, records the login and issues a session token.
func (m *SSOManager) Resolve(ctx context.Context, identity providers.Identity, meta SessionMetadata) (string, *models.User, *models.Session, error) {
	user, err := m.LinkIdentity(ctx, identity)
	if err != nil {
		return "", nil, nil, err
	}
	if !user.IsActive {
		return "", nil, nil, ErrSSOUserDisabled
	}

	if meta.Provider == "" {
		meta.Provider = normaliseProvider(identity.Provider)
	}
	token, session, err := m.sessions.CreateSession(ctx, user.ID, meta)
	if err != nil {
		return "", nil, nil, fmt.Errorf("sso manager: create session: %w", err)
	}

	now := m.clock()
	lastIP := strings.TrimSpace(meta.IPAddress)
	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"last_login_at": now, "last_login_ip": lastIP}).Error; err == nil {
		user.LastLoginAt = &now
		user.LastLoginIP = lastIP
	}

	return token, user, session, nil
}

// LinkIdentity finds the user for identity, provisioning one when allowed.
func (m *SSOManager) LinkIdentity(ctx context.Context, identity providers.Identity) (*models.User, error) {
	email := models.NormalizeEmail(identity.Email)
	if email == "" {
		return nil, ErrSSOEmailRequired
	}
	if !identity.EmailVerified {
		return nil, ErrSSOEmailUnverified
	}

	user, err := m.findUser(ctx, identity, email)
	switch {
	case err == nil:
		return m.refreshProfile(ctx, user, identity)
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !m.autoProvision {
			return nil, ErrSSOUserNotFound
		}
		return m.provisionUser(ctx, identity, email)
	default:
		return nil, err
	}
}

func (m *SSOManager) findUser(ctx context.Context, identity providers.Identity, email string) (*models.User, error) {
	provider := normaliseProvider(identity.Provider)
	subject := strings.TrimSpace(identity.Subject)

	var user models.User
	if subject != "" {
		err := m.db.WithContext(ctx).
			Where("auth_provider = ? AND auth_subject = ?", provider, subject).
			Take(&user).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("sso manager: find user by subject: %w", err)
		}
	}

	err := m.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("sso manager: find user: %w", err)
	}

	if user.AuthSubject != nil && *user.AuthSubject != subject {
		return nil, ErrSSOIdentityConflict
	}
	return &user, nil
}

func (m *SSOManager) refreshProfile(ctx context.Context, user *models.User, identity providers.Identity) (*models.User, error) {
	updates := map[string]any{}
	if subject := strings.TrimSpace(identity.Subject); subject != "" && user.AuthSubject == nil {
		updates["auth_subject"] = subject
		updates["auth_provider"] = normaliseProvider(identity.Provider)
	}
	if name := strings.TrimSpace(identity.DisplayName); name != "" && name != user.DisplayName {
		updates["display_name"] = name
	}
	if picture := strings.TrimSpace(identity.AvatarURL); picture != "" && picture != user.AvatarURL {
		updates["avatar_url"] = picture
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("sso manager: update user: %w", err)
	}
	var reloaded models.User
	if err := m.db.WithContext(ctx).Take(&reloaded, "id = ?", user.ID).Error; err != nil {
		return nil, fmt.Errorf("sso manager: reload user: %w", err)
	}
	return &reloaded, nil
}

func (m *SSOManager) provisionUser(ctx context.Context, identity providers.Identity, email string) (*models.User, error) {
	subject := strings.TrimSpace(identity.Subject)
	user := &models.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(identity.DisplayName),
		AvatarURL:    strings.TrimSpace(identity.AvatarURL),
		AuthProvider: normaliseProvider(identity.Provider),
		IsActive:     true,
	}
	if subject != "" {
		user.AuthSubject = &subject
	}
	if _, ok := m.superAdmins[email]; ok {
		user.Role = models.RoleSuperAdmin
	}

	if err := m.db.WithContext(ctx).Create(user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			// Lost a race against a concurrent first login.
			return m.findUser(ctx, identity, email)
		}
		return nil, fmt.Errorf("sso manager: create user: %w", err)
	}
	return user, nil
}

func normaliseProvider(input string) string {
	provider := strings.ToLower(strings.TrimSpace(input))
	if provider == "" {
		return "google"
	}
	return provider
}
