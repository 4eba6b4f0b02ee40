package conversation

import (
	"time"

	"github.com/laiskydev/respgate/internal/config"
)

// store is the storage backend a Tracker delegates to: the in-process
// arena by default, or Redis when CONV_REDIS_ADDR is configured (spec
// §4.7 expansion). Both backends hand back the same *entry type, so the
// entry-scoped latch (§5) behaves identically regardless of backend.
type store interface {
	getOrCreate(id string, now time.Time) *entry
	touch(id string, now time.Time)
	sweepExpired(now time.Time) []string
	len() int
}

// Tracker is the conversation tracker (C7): it derives conversation ids,
// threads previous_response_id across turns, and accumulates the
// aggregate counters the reasoning analyzer and monitor consult.
type Tracker struct {
	backend store
	ttl     time.Duration
	nowFn   func() time.Time
	stop    chan struct{}
}

// New builds a Tracker from configuration: an in-memory arena by default,
// or a Redis-backed store when cfg.ConvRedisAddr is set.
func New(cfg *config.Config) *Tracker {
	var backend store
	if cfg.ConvRedisAddr != "" {
		backend = newRedisStore(cfg.ConvRedisAddr, cfg.ConvTTL)
	} else {
		backend = newMemoryStore(cfg.ConvMaxEntries, cfg.ConvTTL)
	}
	t := &Tracker{
		backend: backend,
		ttl:     cfg.ConvTTL,
		nowFn:   time.Now,
		stop:    make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

func (t *Tracker) now() time.Time { return t.nowFn() }

// sweepLoop periodically evicts entries past their TTL (spec §9). It runs
// at a third of the TTL, bounded to a sane floor so a very short
// configured TTL (as used in tests) doesn't spin.
func (t *Tracker) sweepLoop() {
	interval := t.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.backend.sweepExpired(t.now())
		case <-t.stop:
			return
		}
	}
}

// Close stops the background TTL sweep. Safe to call once.
func (t *Tracker) Close() { close(t.stop) }

// Len reports the number of tracked conversations, for /health.
func (t *Tracker) Len() int { return t.backend.len() }

// TurnUpdate carries the outcome of one upstream turn back into the
// tracker so it can accumulate counters (spec §3).
type TurnUpdate struct {
	ResponseID         string
	InputTokens        int64
	OutputTokens       int64
	MaxTokensRequested int64
	Elapsed            time.Duration
	Success            bool
}

// BeginTurn resolves the conversation identified by id, returning the
// previous_response_id to thread into this turn's upstream request (spec
// §4.7) and the Hints the reasoning analyzer (C5) uses for its one-level
// error escalation. The entry's latch is held only for this read, never
// across the upstream dispatch that follows (spec §5).
func (t *Tracker) BeginTurn(id string) (previousResponseID string, hints Hints) {
	e := t.backend.getOrCreate(id, t.now())
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx.LastResponseID, e.hints()
}

// CompleteTurn records the outcome of a turn already begun with BeginTurn.
// Like BeginTurn, the latch is acquired only for this write.
func (t *Tracker) CompleteTurn(id string, update TurnUpdate) {
	now := t.now()
	e := t.backend.getOrCreate(id, now)

	e.mu.Lock()
	if update.Success {
		e.ctx.recordSuccess(update.ResponseID, update.InputTokens, update.OutputTokens, update.Elapsed, now)
		e.ctx.LastMaxTokensRequested = update.MaxTokensRequested
		e.ctx.LastOutputTokensReturned = update.OutputTokens
	} else {
		e.ctx.recordError(now)
	}
	e.mu.Unlock()

	t.backend.touch(id, now)
}

// Snapshot returns a copy of the conversation's current state, for
// diagnostics (e.g. a future per-conversation debug endpoint). It
// creates the conversation if absent, so the bool is always true.
func (t *Tracker) Snapshot(id string) (Context, bool) {
	e := t.backend.getOrCreate(id, t.now())
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), true
}
