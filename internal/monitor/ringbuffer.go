package monitor

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/laiskydev/respgate/internal/dialect"
)

// RequestMetric is one completed request's summary, kept in a bounded
// ring buffer so percentile computation and the /health snapshot have
// recent history without unbounded memory growth (spec §4.11).
type RequestMetric struct {
	Dialect    dialect.Dialect
	DurationMs float64
	Degraded   bool
	Errored    bool
	At         time.Time
}

// SecurityEvent is one rejected credential or injection-pattern
// rejection, audited separately from ordinary request metrics (spec §4.4, §4.11).
type SecurityEvent struct {
	Reason string
	At     time.Time
}

const (
	maxRequestMetrics = 1000
	maxSecurityEvents = 500
)

// Recorder is the bounded in-memory audit trail backing /health's recent
// activity summary. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	requests []RequestMetric
	security []SecurityEvent
	nowFn    func() time.Time
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{nowFn: time.Now}
}

// RecordRequest appends m, evicting the oldest entry once the ring
// buffer's capacity (1000, spec §4.11) is exceeded.
func (r *Recorder) RecordRequest(m RequestMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.At.IsZero() {
		m.At = r.nowFn()
	}
	r.requests = append(r.requests, m)
	if len(r.requests) > maxRequestMetrics {
		r.requests = r.requests[len(r.requests)-maxRequestMetrics:]
	}
}

// RecordSecurityEvent appends e, bounded at 500 entries (spec §4.11).
func (r *Recorder) RecordSecurityEvent(e SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.At.IsZero() {
		e.At = r.nowFn()
	}
	r.security = append(r.security, e)
	if len(r.security) > maxSecurityEvents {
		r.security = r.security[len(r.security)-maxSecurityEvents:]
	}
}

// Snapshot is a point-in-time summary of the recorder's contents, used by
// /health.
type Snapshot struct {
	TotalRequests    int
	SuccessfulCount  int
	FailedCount      int
	ErrorRate        float64
	DegradedRate     float64
	P50Ms            float64
	P95Ms            float64
	P99Ms            float64
	LastRequestAt    time.Time
	RecentSecurity   []SecurityEvent
}

// Snapshot computes percentile response times with gonum's stat.Quantile
// (spec §4.11 expansion) over the current request ring buffer.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{TotalRequests: len(r.requests)}
	if len(r.requests) == 0 {
		return snap
	}

	durations := make([]float64, len(r.requests))
	var errored, degraded int
	for i, m := range r.requests {
		durations[i] = m.DurationMs
		if m.Errored {
			errored++
		}
		if m.Degraded {
			degraded++
		}
	}
	sort.Float64s(durations)

	snap.SuccessfulCount = len(r.requests) - errored
	snap.FailedCount = errored
	snap.ErrorRate = float64(errored) / float64(len(r.requests))
	snap.DegradedRate = float64(degraded) / float64(len(r.requests))
	snap.P50Ms = stat.Quantile(0.50, stat.Empirical, durations, nil)
	snap.P95Ms = stat.Quantile(0.95, stat.Empirical, durations, nil)
	snap.P99Ms = stat.Quantile(0.99, stat.Empirical, durations, nil)
	snap.LastRequestAt = r.requests[len(r.requests)-1].At

	start := 0
	if len(r.security) > 20 {
		start = len(r.security) - 20
	}
	snap.RecentSecurity = append(snap.RecentSecurity, r.security[start:]...)
	return snap
}
