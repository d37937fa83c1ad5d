package checks

import (
	"context"
	"time"

	"github.com/charlesng35/verifolio/internal/monitoring"
)

// Pinger is implemented by cache.RedisStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache probes the shared cache. Redis being configured but unreachable
// degrades readiness, since the database-backed store takes over.
func Cache(client Pinger, enabled bool, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		switch {
		case !enabled:
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "database store"}
		case client == nil:
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "redis unavailable; using database store"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()
		return monitoring.ResultFromError(client.Ping(probeCtx), time.Since(start))
	})
}
