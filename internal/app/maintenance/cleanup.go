package maintenance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/verifolio/internal/auth"
	"github.com/charlesng35/verifolio/internal/cache"
	"github.com/charlesng35/verifolio/internal/services"
	"github.com/charlesng35/verifolio/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultCacheSpec          = "@every 15m"
)

// Cleaner coordinates background maintenance: purging expired sessions,
// expiring stale verification links, pruning audit logs and sweeping the
// database cache.
type Cleaner struct {
	sessions      *iauth.SessionService
	audit         *services.AuditService
	verifications *services.VerificationService
	purger        cache.Purger
	cron          *cron.Cron
	log           *zap.Logger
	retention     int
	timeout       time.Duration

	sessionSchedule string
	auditSchedule   string
	cacheSchedule   string

	mu       sync.Mutex
	statuses map[string]*JobStatus
}

// JobStatus is the run history of one cleanup job.
type JobStatus struct {
	Name                string    `json:"name"`
	Runs                int       `json:"runs"`
	LastRunAt           time.Time `json:"last_run_at"`
	LastRemoved         int64     `json:"last_removed"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron expression for session and
// verification expiry.
func WithSessionSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.sessionSchedule = schedule
		}
	}
}

// WithAuditSchedule overrides the cron expression for audit retention enforcement.
func WithAuditSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.auditSchedule = schedule
		}
	}
}

// WithCacheSchedule overrides the cron expression for the cache sweep.
func WithCacheSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.cacheSchedule = schedule
		}
	}
}

// WithVerifications enables expiry of stale verification requests.
func WithVerifications(svc *services.VerificationService) Option {
	return func(cleaner *Cleaner) {
		cleaner.verifications = svc
	}
}

// WithCachePurger sweeps expired rows from a database-backed cache. Redis
// expires keys on its own and needs no purger.
func WithCachePurger(p cache.Purger) Option {
	return func(cleaner *Cleaner) {
		cleaner.purger = p
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding job being skipped.
func NewCleaner(sessions *iauth.SessionService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		audit:           audit,
		retention:       defaultAuditRetentionDays,
		timeout:         time.Minute,
		sessionSchedule: defaultSessionSpec,
		auditSchedule:   defaultAuditSpec,
		cacheSchedule:   defaultCacheSpec,
		log:             logger.WithModule("maintenance"),
		statuses:        make(map[string]*JobStatus),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.sessions != nil {
		jobs = append(jobs, job{"sessions", c.sessionSchedule, c.sessions.CleanupExpired})
	}
	if c.verifications != nil {
		jobs = append(jobs, job{"verifications", c.sessionSchedule, c.verifications.ExpireStale})
	}
	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, job{"audit", c.auditSchedule, func(ctx context.Context) (int64, error) {
			return c.audit.CleanupOlderThan(ctx, c.retention)
		}})
	}
	if c.purger != nil {
		jobs = append(jobs, job{"cache", c.cacheSchedule, c.purger.PurgeExpired})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			removed, err := c.execute(ctx, j)
			if err != nil {
				c.log.Warn("cleanup failed", zap.String("job", j.name), zap.Error(err))
				return
			}
			if removed > 0 {
				c.log.Debug("cleanup completed", zap.String("job", j.name), zap.Int64("removed", removed))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		if _, err := c.execute(ctx, j); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) (int64, error) {
	removed, err := j.run(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[j.name]
	if !ok {
		status = &JobStatus{Name: j.name}
		c.statuses[j.name] = status
	}
	status.Runs++
	status.LastRunAt = time.Now()
	status.LastRemoved = removed
	if err != nil {
		status.LastError = err.Error()
		status.ConsecutiveFailures++
	} else {
		status.LastError = ""
		status.ConsecutiveFailures = 0
	}
	return removed, err
}

// Status returns the history of every job that has run, sorted by name.
func (c *Cleaner) Status() []JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]JobStatus, 0, len(c.statuses))
	for _, status := range c.statuses {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
