package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/laiskydev/respgate/internal/apperr"
)

// BreakerState is one of the three states in spec §4.8's state machine.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig names the thresholds from spec §4.8/§6.
type BreakerConfig struct {
	FailureThreshold int           // failures within Window that trip the breaker
	Window           time.Duration // sliding window the threshold is counted over
	Cooldown         time.Duration // Open duration before a HalfOpen probe is admitted
}

// Breaker is a per-backend circuit breaker: Closed admits everything and
// counts failures in a sliding window; Open rejects everything until
// Cooldown elapses; HalfOpen admits exactly one probe (via a
// semaphore.Weighted(1), spec §4.8 expansion) and transitions back to
// Closed on success or Open on failure.
type Breaker struct {
	cfg BreakerConfig

	mu         sync.Mutex
	state      BreakerState
	failures   []time.Time // timestamps within cfg.Window, oldest first
	openedAt   time.Time
	probeGate  *semaphore.Weighted
	nowFn      func() time.Time
}

// NewBreaker builds a Breaker in the Closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		cfg:       cfg,
		state:     StateClosed,
		probeGate: semaphore.NewWeighted(1),
		nowFn:     time.Now,
	}
}

func (b *Breaker) now() time.Time { return b.nowFn() }

// State reports the breaker's current state, reevaluating an Open->HalfOpen
// cooldown transition as a side effect if the cooldown has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeEnterHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeEnterHalfOpenLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
	}
}

// Allow reports whether a call may proceed right now, and if it may and
// the breaker is HalfOpen, admits it as the single outstanding probe.
// Callers that receive allowed=false must short-circuit straight to the
// graceful-degradation fallback (spec §4.8) without attempting dispatch.
func (b *Breaker) Allow() (allowed bool, isProbe bool) {
	b.mu.Lock()
	b.maybeEnterHalfOpenLocked()
	state := b.state
	b.mu.Unlock()

	switch state {
	case StateClosed:
		return true, false
	case StateOpen:
		return false, false
	case StateHalfOpen:
		if b.probeGate.TryAcquire(1) {
			return true, true
		}
		return false, false
	default:
		return false, false
	}
}

// Report records the outcome of a call admitted by Allow. isProbe must
// match the value Allow returned for this call.
func (b *Breaker) Report(isProbe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isProbe {
		b.probeGate.Release(1)
		if err == nil {
			b.resetLocked()
		} else {
			b.tripLocked()
		}
		return
	}

	if err == nil {
		b.pruneFailuresLocked(b.now())
		return
	}
	if !isBreakerCountedFailure(err) {
		return
	}
	b.failures = append(b.failures, b.now())
	b.pruneFailuresLocked(b.now())
	if len(b.failures) >= b.cfg.FailureThreshold {
		b.tripLocked()
	}
}

func (b *Breaker) pruneFailuresLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for ; i < len(b.failures); i++ {
		if b.failures[i].After(cutoff) {
			break
		}
	}
	b.failures = b.failures[i:]
}

func (b *Breaker) tripLocked() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = nil
}

func (b *Breaker) resetLocked() {
	b.state = StateClosed
	b.failures = nil
}

// isBreakerCountedFailure reports whether err counts toward the failure
// threshold. Client-caused errors (validation, auth, security, rate
// limit) must not trip a breaker meant to track upstream health.
func isBreakerCountedFailure(err error) bool {
	e, ok := apperr.As(err)
	if !ok {
		return true
	}
	switch e.Kind {
	case apperr.KindUpstreamTimeout, apperr.KindUpstreamNetwork, apperr.KindUpstreamServer:
		return true
	default:
		return false
	}
}

// WithDeadline is a convenience a dispatcher can use to bound the single
// HalfOpen probe the same way any other attempt is bounded.
func WithDeadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
