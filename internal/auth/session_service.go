package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/pkg/metrics"
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	Clock func() time.Time
	Cache SessionCache
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	Provider  string
	IPAddress string
	UserAgent string
}

var (
	// ErrSessionNotFound indicates that no session matches the token or identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that was signed out or revoked.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that the session reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the token fails signature or claim checks.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionService creates, validates and revokes server side sessions. Each
// session is bound to exactly one signed auth token.
type SessionService struct {
	db    *gorm.DB
	jwt   *JWTService
	now   func() time.Time
	cache SessionCache
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:    db,
		jwt:   jwtService,
		now:   clock,
		cache: cfg.Cache,
	}, nil
}

// CreateSession persists a session for userID and returns its signed token.
func (s *SessionService) CreateSession(ctx context.Context, userID string, meta SessionMetadata) (string, *models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, errors.New("session service: user id is required")
	}

	now := s.now()
	session := &models.Session{
		UserID:     userID,
		Provider:   strings.TrimSpace(meta.Provider),
		IPAddress:  strings.TrimSpace(meta.IPAddress),
		UserAgent:  strings.TrimSpace(meta.UserAgent),
		ExpiresAt:  now.Add(s.jwt.TTL()),
		LastUsedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return "", nil, fmt.Errorf("session service: create session: %w", err)
	}

	token, err := s.jwt.Issue(TokenInput{
		UserID:    userID,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return "", nil, fmt.Errorf("session service: issue token: %w", err)
	}

	metrics.ActiveSessions.Inc()
	s.cacheSession(ctx, session)

	return token, session, nil
}

// Validate parses token and confirms that its session is still active.
func (s *SessionService) Validate(ctx context.Context, token string) (*Claims, *models.Session, error) {
	claims, err := s.jwt.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionInvalidToken, err)
	}

	session, err := s.lookup(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.UserID != claims.UserID {
		return nil, nil, ErrSessionInvalidToken
	}
	if session.RevokedAt != nil {
		return nil, nil, ErrSessionRevoked
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, nil, ErrSessionExpired
	}

	return claims, session, nil
}

func (s *SessionService) lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, sessionID); err == nil && cached != nil {
			return cached, nil
		}
	}

	var session models.Session
	err := s.db.WithContext(ctx).Take(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	s.cacheSession(ctx, &session)
	return &session, nil
}

func (s *SessionService) cacheSession(ctx context.Context, session *models.Session) {
	if s.cache == nil || session.RevokedAt != nil {
		return
	}
	if ttl := session.ExpiresAt.Sub(s.now()); ttl > 0 {
		_ = s.cache.Set(ctx, session, ttl)
	}
}

// Touch records activity on a session.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", sessionID).
		UpdateColumn("last_used_at", s.now()).Error
}

// RevokeSession marks a session as revoked so its token stops validating.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}

	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, sessionID)
	}
	metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	return nil
}

// RevokeUserSessions revokes every active session belonging to a user.
func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrSessionInvalidToken
	}

	var ids []string
	if s.cache != nil {
		if err := s.db.WithContext(ctx).
			Model(&models.Session{}).
			Where("user_id = ? AND revoked_at IS NULL", userID).
			Pluck("id", &ids).Error; err != nil {
			ids = nil
		}
	}

	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	if s.cache != nil && len(ids) > 0 {
		_ = s.cache.Delete(ctx, ids...)
	}
	return result.RowsAffected, nil
}

// ListUserSessions returns the user's active sessions, newest first.
func (s *SessionService) ListUserSessions(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, s.now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session service: list sessions: %w", err)
	}
	return sessions, nil
}

// CleanupExpired deletes expired and revoked sessions.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()

	var activeExpired int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at < ? AND revoked_at IS NULL", now).
		Count(&activeExpired).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	var ids []string
	if s.cache != nil {
		_ = s.db.WithContext(ctx).
			Model(&models.Session{}).
			Where("expires_at < ? OR revoked_at IS NOT NULL", now).
			Pluck("id", &ids).Error
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at IS NOT NULL", now).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	if s.cache != nil && len(ids) > 0 {
		_ = s.cache.Delete(ctx, ids...)
	}
	if activeExpired > 0 {
		metrics.ActiveSessions.Sub(float64(activeExpired))
	}
	return result.RowsAffected, nil
}
