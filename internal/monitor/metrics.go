// Package monitor implements the monitor/audit component (C11): request
// metrics, security-event auditing, and the /health and /metrics
// surfaces, per spec §4.11.
package monitor

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/dialect"
	"github.com/laiskydev/respgate/internal/unified"
)

// Metrics holds the Prometheus collectors recorded per request (spec
// §4.11 expansion): counters broken out by dialect, reasoning-effort
// bucket, and error class, plus a breaker-trip counter per backend.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	breakerTrips    *prometheus.CounterVec
	degradedTotal   prometheus.Counter
	conversationLen prometheus.GaugeFunc

	// Cumulative token counters, kept outside the Prometheus registry
	// since /health's metrics.tokens field (spec §6) needs a plain
	// running total rather than a scrape-time series.
	tokensTotal     int64
	tokensReasoning int64
}

// NewMetrics registers a fresh set of collectors on their own registry
// (rather than the global default) so multiple Trackers/backends in
// tests don't collide on duplicate registration.
func NewMetrics(conversationLen func() float64) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "respgate_requests_total",
			Help: "Total requests processed, by dialect and reasoning effort bucket.",
		}, []string{"dialect", "effort"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "respgate_request_duration_seconds",
			Help:    "End-to-end request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dialect"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "respgate_errors_total",
			Help: "Errors returned to clients, by taxonomy kind.",
		}, []string{"kind"}),
		breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "respgate_breaker_trips_total",
			Help: "Circuit breaker trips, by backend.",
		}, []string{"backend"}),
		degradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "respgate_degraded_responses_total",
			Help: "Responses served via the graceful-degradation fallback.",
		}),
	}
	if conversationLen != nil {
		m.conversationLen = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "respgate_tracked_conversations",
			Help: "Conversations currently tracked by the conversation tracker.",
		}, conversationLen)
	}

	reg.MustRegister(m.requestsTotal, m.requestLatency, m.errorsTotal, m.breakerTrips, m.degradedTotal)
	if m.conversationLen != nil {
		reg.MustRegister(m.conversationLen)
	}
	return m
}

// Registry exposes the underlying registry for wiring into promhttp.Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRequest records one completed request's outcome.
func (m *Metrics) RecordRequest(d dialect.Dialect, effort unified.ReasoningEffort, elapsedSeconds float64, degraded bool) {
	m.requestsTotal.WithLabelValues(string(d), string(effort)).Inc()
	m.requestLatency.WithLabelValues(string(d)).Observe(elapsedSeconds)
	if degraded {
		m.degradedTotal.Inc()
	}
}

// RecordError records a client-visible error by taxonomy kind.
func (m *Metrics) RecordError(kind apperr.Kind) {
	m.errorsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordBreakerTrip records a circuit breaker transitioning to Open for backend.
func (m *Metrics) RecordBreakerTrip(backend string) {
	m.breakerTrips.WithLabelValues(backend).Inc()
}

// RecordTokens adds u's token counts to the running totals /health reports.
func (m *Metrics) RecordTokens(u unified.Usage) {
	atomic.AddInt64(&m.tokensTotal, int64(u.TotalTokens))
	atomic.AddInt64(&m.tokensReasoning, int64(u.ReasoningTokens))
}

// TokenTotals reports the cumulative total and reasoning token counts
// recorded so far.
func (m *Metrics) TokenTotals() (total, reasoning int64) {
	return atomic.LoadInt64(&m.tokensTotal), atomic.LoadInt64(&m.tokensReasoning)
}
