// Package resilience implements the resilience kernel (C8): jittered
// exponential-backoff retry, a Closed/Open/HalfOpen circuit breaker, and
// the graceful-degradation fallback, per spec §4.8.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/laiskydev/respgate/internal/apperr"
)

// RetryPolicy holds the parameters of the backoff formula in spec §4.8/§8:
// delay(n) = min(D_max, D0 * 2^(n-1)) * (1 ± jitter), attempts capped at
// MaxAttempts and the overall wall-clock bounded by Deadline.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction, e.g. 0.2 for ±20%
	Deadline    time.Duration
}

// DefaultRetryPolicy matches the defaults named in spec §6.
func DefaultRetryPolicy(maxAttempts int, deadline time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.1,
		Deadline:    deadline,
	}
}

// delay computes delay(n) for the n-th retry (n starts at 1) without
// jitter applied; kept separate from jittered so tests in this package
// can assert the formula directly instead of only its jittered output.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * float64(uint64(1)<<uint(attempt-1))
	max := float64(p.MaxDelay)
	if d > max {
		d = max
	}
	return time.Duration(d)
}

// jittered applies the ± jitter fraction to a base delay using r, which
// tests can seed for determinism; production calls pass the package-level
// rng wrapper.
func (p RetryPolicy) jittered(base time.Duration, r *rand.Rand) time.Duration {
	if p.Jitter == 0 {
		return base
	}
	// r.Float64() in [0,1); map to [-jitter, +jitter].
	offset := (r.Float64()*2 - 1) * p.Jitter
	return time.Duration(float64(base) * (1 + offset))
}

// Classifier decides whether an error is worth retrying (apperr.Retryable
// already encodes this per error Kind; Classifier exists so callers can
// layer additional upstream-specific rules, e.g. a 429 body reason, on
// top of the kind-based default).
type Classifier func(error) bool

// DefaultClassifier delegates to apperr.Retryable.
func DefaultClassifier(err error) bool { return apperr.Retryable(err) }

// Do runs fn, retrying per policy while classify(err) is true, until
// MaxAttempts is exhausted or ctx/deadline expires. rng is optional; pass
// nil in production to use a fresh math/rand/v2 source per call, or a
// seeded *rand.Rand in tests for deterministic jitter.
func Do(ctx context.Context, policy RetryPolicy, classify Classifier, rng *rand.Rand, fn func(ctx context.Context, attempt int) error) error {
	if classify == nil {
		classify = DefaultClassifier
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	deadline := time.Now().Add(policy.Deadline)
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if time.Now().After(deadline) {
			return errors.Wrap(lastErr, "retry deadline exceeded")
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !classify(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		wait := policy.jittered(policy.delay(attempt), rng)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
