package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/cache"
	testutil "github.com/charlesng35/verifolio/internal/database/testutil"
	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/services"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	clock := &fixedClock{current: time.Now().UTC()}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:   "cleanup-secret",
		Issuer:   "test-suite",
		TokenTTL: time.Hour,
		Clock:    clock.Now,
	})
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{Clock: clock.Now})
	require.NoError(t, err)

	user := seedUser(t, db, "cleanup@uni.edu")

	_, expiredSession, err := sessionSvc.CreateSession(ctx, user.ID, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", expiredSession.ID).
		Update("expires_at", clock.Now().Add(-2*time.Hour)).Error)

	_, activeSession, err := sessionSvc.CreateSession(ctx, user.ID, iauth.SessionMetadata{})
	require.NoError(t, err)

	_, revokedSession, err := sessionSvc.CreateSession(ctx, user.ID, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, sessionSvc.RevokeSession(ctx, revokedSession.ID))

	require.NoError(t, auditSvc.Log(ctx, services.AuditEntry{
		Action: "test.action",
		Result: "success",
		Actor:  "tester",
	}))
	var auditLog models.AuditLog
	require.NoError(t, db.First(&auditLog).Error)
	require.NoError(t, db.Model(&auditLog).Update("created_at", clock.Now().AddDate(0, 0, -10)).Error)

	require.NoError(t, db.Create(&models.CacheEntry{Key: "stale", Value: []byte("1"), ExpiresAt: time.Now().Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "live", Value: []byte("1"), ExpiresAt: time.Now().Add(time.Hour)}).Error)

	c := NewCleaner(sessionSvc, auditSvc,
		WithAuditRetentionDays(7),
		WithCachePurger(cache.NewDatabaseStore(db)),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(ctx))

	assertNotFound := func(id string) {
		var s models.Session
		err := db.First(&s, "id = ?", id).Error
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	}
	assertNotFound(expiredSession.ID)
	assertNotFound(revokedSession.ID)

	var remaining models.Session
	require.NoError(t, db.First(&remaining, "id = ?", activeSession.ID).Error)

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Zero(t, count)

	var keys []string
	require.NoError(t, db.Model(&models.CacheEntry{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"live"}, keys)

	statuses := c.Status()
	require.Len(t, statuses, 3)
	require.Equal(t, "audit", statuses[0].Name)
	require.Equal(t, int64(1), statuses[0].LastRemoved)
	for _, status := range statuses {
		require.Equal(t, 1, status.Runs)
		require.Zero(t, status.ConsecutiveFailures)
	}
}

type failingPurger struct{}

func (failingPurger) PurgeExpired(context.Context) (int64, error) {
	return 0, errors.New("disk on fire")
}

func TestCleanerRecordsFailures(t *testing.T) {
	c := NewCleaner(nil, nil, WithCachePurger(failingPurger{}))

	require.Error(t, c.RunOnce(context.Background()))
	require.Error(t, c.RunOnce(context.Background()))

	statuses := c.Status()
	require.Len(t, statuses, 1)
	require.Equal(t, "cache", statuses[0].Name)
	require.Equal(t, 2, statuses[0].ConsecutiveFailures)
	require.Equal(t, "disk on fire", statuses[0].LastError)
}

func TestCleanerStartWithoutJobs(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	c := NewCleaner(nil, auditSvc, WithAuditSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		Email:       email,
		DisplayName: "Cleanup User",
		Role:        models.RoleStudent,
		IsActive:    true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
