package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func staticCheck(name string, status ProbeStatus) Check {
	return NewCheck(name, func(context.Context) ProbeResult {
		return ProbeResult{Status: status}
	})
}

func TestHealthManagerReportsWorstStatus(t *testing.T) {
	m := NewHealthManager()
	m.RegisterLiveness(staticCheck("process", StatusUp))
	m.RegisterReadiness(staticCheck("database", StatusUp))
	m.RegisterReadiness(staticCheck("cache", StatusDegraded))

	live := m.EvaluateLiveness(context.Background())
	require.True(t, live.Success)
	require.Equal(t, StatusUp, live.Status)
	require.Len(t, live.Checks, 1)

	ready := m.EvaluateReadiness(context.Background())
	require.False(t, ready.Success)
	require.Equal(t, StatusDegraded, ready.Status)

	m.RegisterReadiness(staticCheck("broken", StatusDown))
	all := m.Evaluate(context.Background())
	require.Equal(t, StatusDown, all.Status)
	require.Len(t, all.Checks, 4)
	require.Equal(t, "process", all.Checks[0].Component)
	require.Equal(t, "broken", all.Checks[3].Component)
}

func TestHealthManagerIgnoresUnnamedChecks(t *testing.T) {
	m := NewHealthManager()
	m.RegisterReadiness(Check{Run: func(context.Context) ProbeResult { return ProbeResult{Status: StatusDown} }})

	report := m.Evaluate(context.Background())
	require.True(t, report.Success)
	require.Empty(t, report.Checks)
}

func TestRunCheckRecoversPanics(t *testing.T) {
	result := runCheck(context.Background(), NewCheck("boom", func(context.Context) ProbeResult {
		panic("exploded")
	}))

	require.Equal(t, "boom", result.Component)
	require.Equal(t, StatusDown, result.Status)
	require.Equal(t, "exploded", result.Details)
}

func TestNilProbeReportsDown(t *testing.T) {
	result := runCheck(context.Background(), NewCheck("empty", nil))
	require.Equal(t, StatusDown, result.Status)
}

func TestResultFromError(t *testing.T) {
	require.Equal(t, StatusUp, ResultFromError(nil, time.Millisecond).Status)
	require.Equal(t, StatusDown, ResultFromError(errors.New("refused"), 0).Status)

	timeout := ResultFromError(context.DeadlineExceeded, -time.Second)
	require.Equal(t, StatusDegraded, timeout.Status)
	require.Zero(t, timeout.Duration)
}
