package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/verifolio/internal/app/maintenance"
	"github.com/charlesng35/verifolio/internal/monitoring"
)

const defaultMaintenanceMaxAge = 26 * time.Hour

// JobReporter exposes cleanup job history. *maintenance.Cleaner satisfies it.
type JobReporter interface {
	Status() []maintenance.JobStatus
}

// Maintenance reports cleanup jobs that keep failing or have not run
// within maxAge.
func Maintenance(reporter JobReporter, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.ProbeResult {
		if reporter == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "maintenance disabled"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var problems []string
		for _, job := range reporter.Status() {
			switch {
			case job.ConsecutiveFailures > 0:
				status = monitoring.StatusDegraded
				problems = append(problems, job.Name+": "+job.LastError)
			case !job.LastRunAt.IsZero() && now.Sub(job.LastRunAt) > maxAge:
				status = monitoring.StatusDegraded
				problems = append(problems, job.Name+": last run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}
		return monitoring.ProbeResult{Status: status, Details: strings.Join(problems, "; ")}
	})
}
