package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://portfolio.example.edu", "http://127.0.0.1:5173"}, cfg.Server.CORSOrigins())
	require.Equal(t, 30, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	db := cfg.Database.DatabaseSettings()
	require.Equal(t, "postgres", db.Driver)
	require.Equal(t, "db.example.com", db.Host)
	require.Equal(t, "verifolio", db.Name)

	redis := cfg.Cache.RedisClientConfig()
	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.internal:6379", redis.Address)
	require.Equal(t, 2, redis.DB)
	require.Equal(t, 2*time.Second, redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 48*time.Hour, cfg.Auth.SessionTTL())
	require.Equal(t, "vf-session", cfg.Auth.CookieName())
	require.True(t, cfg.Auth.Session.SecureCookie)
	require.Equal(t, 5*time.Minute, cfg.Auth.State.TTL)

	google := cfg.Auth.GoogleProviderConfig()
	require.Equal(t, "client-id", google.ClientID)
	require.Equal(t, "https://accounts.google.com", google.Issuer)
	require.Equal(t, []string{"openid", "email", "profile"}, google.Scopes)
	require.Equal(t, []string{"root@example.edu"}, cfg.Auth.SSOConfig().SuperAdminEmails)
	require.True(t, cfg.Auth.SSOConfig().AutoProvision)

	require.Equal(t, 72*time.Hour, cfg.Verification.TokenTTL)

	smtp := cfg.Email.SMTPSettings()
	require.True(t, smtp.Enabled)
	require.Equal(t, 2525, smtp.Port)
	require.Equal(t, 10*time.Second, smtp.Timeout)

	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)
	require.Equal(t, "@every 5m", cfg.Maintenance.CacheSchedule)
	require.Equal(t, "@hourly", cfg.Maintenance.SessionSchedule)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/verifolio.sqlite", cfg.Database.DatabaseSettings().Path)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, auth.DefaultTokenTTL, cfg.Auth.SessionTTL())
	require.Equal(t, "auth-token", cfg.Auth.CookieName())
	require.Equal(t, 14*24*time.Hour, cfg.Verification.TokenTTL)
	require.Empty(t, cfg.Auth.JWT.Secret)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("VERIFOLIO_SERVER_PORT", "9191")
	t.Setenv("VERIFOLIO_AUTH_JWT_SECRET", "from-env")
	t.Setenv("VERIFOLIO_CACHE_REDIS_ENABLED", "true")

	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	require.True(t, cfg.Cache.Redis.Enabled)
}

func TestStateKeyDerivation(t *testing.T) {
	cfg := AuthConfig{State: StateSettings{Secret: "state-secret"}}
	first, err := cfg.StateKey()
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := cfg.StateKey()
	require.NoError(t, err)
	require.Equal(t, first, second)

	_, err = AuthConfig{}.StateKey()
	require.Error(t, err)
}
