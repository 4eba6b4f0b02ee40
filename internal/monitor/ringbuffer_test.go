package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/dialect"
)

func TestRecorderSnapshotComputesRatesAndPercentiles(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < 10; i++ {
		r.RecordRequest(RequestMetric{Dialect: dialect.Claude, DurationMs: float64(100 + i*10)})
	}
	r.RecordRequest(RequestMetric{Dialect: dialect.Claude, DurationMs: 50, Errored: true})
	r.RecordRequest(RequestMetric{Dialect: dialect.Claude, DurationMs: 50, Degraded: true})

	snap := r.Snapshot()
	require.Equal(t, 12, snap.TotalRequests)
	require.InDelta(t, 1.0/12.0, snap.ErrorRate, 1e-9)
	require.InDelta(t, 1.0/12.0, snap.DegradedRate, 1e-9)
	require.Greater(t, snap.P99Ms, snap.P50Ms)
}

func TestRecorderRequestRingBufferBounded(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < maxRequestMetrics+50; i++ {
		r.RecordRequest(RequestMetric{DurationMs: 1})
	}
	require.Len(t, r.requests, maxRequestMetrics)
}

func TestRecorderSecurityEventsBoundedAndRecent(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < maxSecurityEvents+10; i++ {
		r.RecordSecurityEvent(SecurityEvent{Reason: "injection_pattern", At: time.Now()})
	}
	require.Len(t, r.security, maxSecurityEvents)

	snap := r.Snapshot()
	require.LessOrEqual(t, len(snap.RecentSecurity), 20)
}
