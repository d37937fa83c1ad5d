package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/verifolio/internal/api"
	"github.com/charlesng35/verifolio/internal/app"
	"github.com/charlesng35/verifolio/internal/app/maintenance"
	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/auth/providers"
	"github.com/charlesng35/verifolio/internal/cache"
	"github.com/charlesng35/verifolio/internal/middleware"
	"github.com/charlesng35/verifolio/internal/monitoring"
	"github.com/charlesng35/verifolio/internal/monitoring/checks"
	"github.com/charlesng35/verifolio/internal/notifications"
	"github.com/charlesng35/verifolio/internal/services"
	"github.com/charlesng35/verifolio/pkg/logger"
	"github.com/charlesng35/verifolio/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Redis         *cache.RedisStore
	Store         cache.Store
	SessionSvc    *iauth.SessionService
	LoginFlow     *iauth.LoginFlow
	AuditSvc      *services.AuditService
	Verifications *services.VerificationService
	Hub           *notifications.Hub
	Cleaner       *maintenance.Cleaner
	RateStore     middleware.RateStore
	Health        *monitoring.HealthManager
	Router        *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := app.PersistGeneratedSecrets(ctx, stack.DB, cfg, generated); err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, iauth.SessionConfig{Cache: iauth.NewStoreSessionCache(stack.Store)})
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	if cfg.Auth.Google.Enabled {
		stack.LoginFlow, err = buildLoginFlow(ctx, cfg, stack.DB, stack.SessionSvc, stack.Store)
		if err != nil {
			return nil, err
		}
		log.Info("google sign-in enabled", zap.String("issuer", cfg.Auth.Google.Issuer))
	} else {
		log.Warn("google sign-in disabled; login endpoints will report unavailable")
	}

	stack.Hub = notifications.NewHub(cfg.Server.CORSOrigins())

	mailer, err := buildMailer(cfg)
	if err != nil {
		return nil, err
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	users, err := services.NewUserService(stack.DB, stack.AuditSvc, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	claims, err := services.NewClaimService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise claim service: %w", err)
	}

	stack.Verifications, err = services.NewVerificationService(stack.DB, stack.AuditSvc, services.VerificationConfig{
		BaseURL:  cfg.Verification.BaseURL,
		TokenTTL: cfg.Verification.TokenTTL,
	}, services.WithVerificationMailer(mailer), services.WithVerificationInvalidator(stack.Hub))
	if err != nil {
		return nil, fmt.Errorf("initialise verification service: %w", err)
	}

	associations, err := services.NewAssociationService(stack.DB, stack.AuditSvc, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise association service: %w", err)
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithVerifications(stack.Verifications),
	}
	if stack.Redis == nil {
		cleanerOpts = append(cleanerOpts, maintenance.WithCachePurger(dbStore))
	}
	stack.Cleaner = maintenance.NewCleaner(stack.SessionSvc, stack.AuditSvc, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewCacheRateStore(stack.Store)
	stack.Health = buildHealth(cfg, stack)

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:        cfg,
		DB:            stack.DB,
		Sessions:      stack.SessionSvc,
		LoginFlow:     stack.LoginFlow,
		Users:         users,
		Audit:         stack.AuditSvc,
		Claims:        claims,
		Verifications: stack.Verifications,
		Associations:  associations,
		Hub:           stack.Hub,
		RateStore:     stack.RateStore,
		Health:        stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func buildLoginFlow(ctx context.Context, cfg *app.Config, db *gorm.DB, sessions *iauth.SessionService, store cache.Store) (*iauth.LoginFlow, error) {
	provider, err := providers.NewGoogleProvider(ctx, cfg.Auth.GoogleProviderConfig(), providers.GoogleOptions{})
	if err != nil {
		return nil, fmt.Errorf("initialise google provider: %w", err)
	}

	manager, err := iauth.NewSSOManager(db, sessions, cfg.Auth.SSOConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise sso manager: %w", err)
	}

	key, err := cfg.Auth.StateKey()
	if err != nil {
		return nil, fmt.Errorf("derive state key: %w", err)
	}

	codec, err := iauth.NewStateCodec(key, cfg.Auth.State.TTL, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise state codec: %w", err)
	}

	flow, err := iauth.NewLoginFlow(provider, codec, iauth.NewStateGuard(store, cfg.Auth.State.TTL), manager)
	if err != nil {
		return nil, fmt.Errorf("initialise login flow: %w", err)
	}
	return flow, nil
}

func buildHealth(cfg *app.Config, stack *runtimeStack) *monitoring.HealthManager {
	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(checks.Database(stack.DB, 0))

	var redisPinger checks.Pinger
	if stack.Redis != nil {
		redisPinger = stack.Redis
	}
	manager.RegisterReadiness(checks.Cache(redisPinger, cfg.Cache.Redis.Enabled, cfg.Cache.Redis.Timeout))
	manager.RegisterLiveness(checks.Maintenance(stack.Cleaner, 0))
	return manager
}

func buildMailer(cfg *app.Config) (mail.Mailer, error) {
	if !cfg.Email.SMTP.Enabled {
		return mail.NewLogMailer(logger.WithModule("mail")), nil
	}
	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	return mailer, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}
