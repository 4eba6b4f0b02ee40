package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/dialect"
	"github.com/laiskydev/respgate/internal/unified"
)

func TestMetricsRecordRequestIncrementsCounters(t *testing.T) {
	m := NewMetrics(func() float64 { return 3 })

	m.RecordRequest(dialect.Claude, unified.EffortMedium, 0.25, false)
	require.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("claude", "medium")), 1e-9)

	m.RecordError(apperr.KindUpstreamTimeout)
	require.InDelta(t, 1, testutil.ToFloat64(m.errorsTotal.WithLabelValues("upstream_timeout_error")), 1e-9)

	m.RecordBreakerTrip("azure")
	require.InDelta(t, 1, testutil.ToFloat64(m.breakerTrips.WithLabelValues("azure")), 1e-9)

	require.InDelta(t, 3, testutil.ToFloat64(m.conversationLen), 1e-9)
}

func TestMetricsRecordTokensAccumulates(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordTokens(unified.Usage{TotalTokens: 10, ReasoningTokens: 2})
	m.RecordTokens(unified.Usage{TotalTokens: 5, ReasoningTokens: 1})

	total, reasoning := m.TokenTotals()
	require.Equal(t, int64(15), total)
	require.Equal(t, int64(3), reasoning)
}
