package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hartline/accountd/internal/database/testutil"
)

func TestEvaluateAggregatesStatuses(t *testing.T) {
	up := NewCheck("up", func(context.Context) ProbeResult {
		return ProbeResult{Status: StatusUp}
	})
	degraded := NewCheck("degraded", func(context.Context) ProbeResult {
		return ProbeResult{Status: StatusDegraded}
	})
	down := NewCheck("down", func(context.Context) ProbeResult {
		return ProbeResult{Status: StatusDown}
	})

	report := Evaluate(context.Background(), []Check{up})
	require.True(t, report.Success)
	require.Equal(t, StatusUp, report.Status)

	report = Evaluate(context.Background(), []Check{up, degraded})
	require.False(t, report.Success)
	require.Equal(t, StatusDegraded, report.Status)

	report = Evaluate(context.Background(), []Check{up, degraded, down})
	require.False(t, report.Success)
	require.Equal(t, StatusDown, report.Status)
	require.Len(t, report.Checks, 3)
	require.Equal(t, "down", report.Checks[2].Component)
}

func TestEvaluateEmptyChecksSucceeds(t *testing.T) {
	report := Evaluate(context.Background(), nil)
	require.True(t, report.Success)
	require.Equal(t, StatusUp, report.Status)
	require.Empty(t, report.Checks)
}

func TestRunCheckRecoversPanic(t *testing.T) {
	boom := NewCheck("boom", func(context.Context) ProbeResult {
		panic("probe exploded")
	})

	report := Evaluate(context.Background(), []Check{boom})
	require.False(t, report.Success)
	require.Equal(t, StatusDown, report.Checks[0].Status)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
	require.Equal(t, "boom", report.Checks[0].Component)
}

func TestResultFromError(t *testing.T) {
	result := ResultFromError("database", nil, 0)
	require.Equal(t, StatusUp, result.Status)

	result = ResultFromError("database", errors.New("connection refused"), 0)
	require.Equal(t, StatusDown, result.Status)
	require.Equal(t, "connection refused", result.Details)

	result = ResultFromError("redis", context.DeadlineExceeded, 0)
	require.Equal(t, StatusDegraded, result.Status)
}

func TestDatabaseProbe(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := Evaluate(context.Background(), []Check{Database(db, 0)})
	require.True(t, result.Success)
	require.Equal(t, StatusUp, result.Checks[0].Status)

	result = Evaluate(context.Background(), []Check{Database(nil, 0)})
	require.False(t, result.Success)
	require.Equal(t, StatusDown, result.Checks[0].Status)
}

func TestRedisProbe(t *testing.T) {
	result := Evaluate(context.Background(), []Check{Redis(nil, false, 0)})
	require.True(t, result.Success)
	require.Equal(t, "redis disabled", result.Checks[0].Details)

	result = Evaluate(context.Background(), []Check{Redis(nil, true, 0)})
	require.False(t, result.Success)
	require.Equal(t, StatusDegraded, result.Checks[0].Status)
}
