package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/dialect"
)

func TestEvaluateHealthThresholds(t *testing.T) {
	require.Equal(t, StatusHealthy, Evaluate(EvaluateInput{ErrorRate: 0.10}))
	require.Equal(t, StatusUnhealthy, Evaluate(EvaluateInput{ErrorRate: 0.51}))
	require.Equal(t, StatusDegraded, Evaluate(EvaluateInput{ErrorRate: 0.0, AnyBreakerTrips: true}))
	require.Equal(t, StatusDegraded, Evaluate(EvaluateInput{ErrorRate: 0.0, DegradedRate: 0.01}))
	require.Equal(t, StatusDegraded, Evaluate(EvaluateInput{HeapPercent: 0.85}))
	require.Equal(t, StatusUnhealthy, Evaluate(EvaluateInput{HeapPercent: 0.95}))
}

func TestBuildHealthReportIncludesServicesAndMetrics(t *testing.T) {
	r := NewRecorder()
	r.RecordRequest(RequestMetric{Dialect: dialect.Claude, DurationMs: 100})
	r.RecordRequest(RequestMetric{Dialect: dialect.Claude, DurationMs: 50, Errored: true})
	snap := r.Snapshot()

	report := BuildHealthReport(snap, map[string]string{"azure": "open"}, 1000, 200,
		time.Minute, "1.2.3", "test")

	require.Equal(t, "1.2.3", report.Version)
	require.Equal(t, "test", report.Environment)
	require.Equal(t, StatusUnhealthy, report.Services.AzureOpenAI.Status)
	require.Equal(t, "open", report.Services.CircuitBreakers["azure"])
	require.Equal(t, 2, report.Metrics.Requests.Total)
	require.Equal(t, 1, report.Metrics.Requests.Failed)
	require.Equal(t, int64(1000), report.Metrics.Tokens.Total)
	require.Equal(t, int64(200), report.Metrics.Tokens.Reasoning)
}
