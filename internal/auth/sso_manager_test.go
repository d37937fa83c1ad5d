package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/internal/models"
)

func newTestSSOManager(t *testing.T, cfg SSOConfig) (*gorm.DB, *SSOManager, *testClock) {
	t.Helper()

	db, sessions, clock := setupSessionService(t, nil)
	cfg.Clock = clock.Now
	manager, err := NewSSOManager(db, sessions, cfg)
	require.NoError(t, err)
	return db, manager, clock
}

func googleIdentity(subject, email string) providers.Identity {
	return providers.Identity{
		Provider:      "google",
		Subject:       subject,
		Email:         email,
		EmailVerified: true,
		DisplayName:   "Grace Hopper",
		AvatarURL:     "https://example.com/grace.png",
	}
}

func TestSSOResolveExistingUserLinksSubject(t *testing.T) {
	db, manager, clock := newTestSSOManager(t, SSOConfig{})
	user := createTestUser(t, db, "grace@navy.mil")

	token, resolved, session, err := manager.Resolve(context.Background(), googleIdentity("sub-1", "Grace@Navy.mil"), SessionMetadata{IPAddress: "10.1.1.1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, user.ID, resolved.ID)
	require.Equal(t, "google", session.Provider)

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.AuthSubject)
	require.Equal(t, "sub-1", *stored.AuthSubject)
	require.Equal(t, "Grace Hopper", stored.DisplayName)
	require.Equal(t, "10.1.1.1", stored.LastLoginIP)
	require.WithinDuration(t, clock.Now(), stored.LastLoginAt.UTC(), time.Second)
}

func TestSSOResolveAutoProvision(t *testing.T) {
	db, manager, _ := newTestSSOManager(t, SSOConfig{AutoProvision: true, SuperAdminEmails: []string{" Root@Example.com "}})

	_, user, _, err := manager.Resolve(context.Background(), googleIdentity("sub-new", "new@example.com"), SessionMetadata{})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", user.Email)
	require.Empty(t, user.Role)

	_, again, _, err := manager.Resolve(context.Background(), googleIdentity("sub-new", "new@example.com"), SessionMetadata{})
	require.NoError(t, err)
	require.Equal(t, user.ID, again.ID)

	_, admin, _, err := manager.Resolve(context.Background(), googleIdentity("sub-root", "root@example.com"), SessionMetadata{})
	require.NoError(t, err)
	require.Equal(t, models.RoleSuperAdmin, admin.Role)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestSSOResolveConcurrentFirstLoginCreatesOneUser(t *testing.T) {
	db, manager, _ := newTestSSOManager(t, SSOConfig{AutoProvision: true})
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, user, _, err := manager.Resolve(context.Background(), googleIdentity("sub-race", "race@example.com"), SessionMetadata{})
			if err == nil {
				ids[i] = user.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSSOResolveRejections(t *testing.T) {
	db, manager, _ := newTestSSOManager(t, SSOConfig{})
	ctx := context.Background()

	_, _, _, err := manager.Resolve(ctx, googleIdentity("sub", ""), SessionMetadata{})
	require.ErrorIs(t, err, ErrSSOEmailRequired)

	unverified := googleIdentity("sub", "x@example.com")
	unverified.EmailVerified = false
	_, _, _, err = manager.Resolve(ctx, unverified, SessionMetadata{})
	require.ErrorIs(t, err, ErrSSOEmailUnverified)

	_, _, _, err = manager.Resolve(ctx, googleIdentity("sub", "missing@example.com"), SessionMetadata{})
	require.ErrorIs(t, err, ErrSSOUserNotFound)

	linked := createTestUser(t, db, "linked@example.com")
	other := "sub-original"
	require.NoError(t, db.Model(linked).Update("auth_subject", other).Error)
	_, _, _, err = manager.Resolve(ctx, googleIdentity("sub-imposter", "linked@example.com"), SessionMetadata{})
	require.ErrorIs(t, err, ErrSSOIdentityConflict)

	disabled := createTestUser(t, db, "disabled@example.com")
	require.NoError(t, db.Model(disabled).Update("is_active", false).Error)
	_, _, _, err = manager.Resolve(ctx, googleIdentity("sub-d", "disabled@example.com"), SessionMetadata{})
	require.ErrorIs(t, err, ErrSSOUserDisabled)
}
