package conversation

import "sync"

// entry is the tracker's unit of storage: a Context plus the entry-scoped
// latch that linearizes reads and writes against it (spec §5, §4.7
// expansion). The latch's lifetime is tied to the entry's, so evicting the
// entry from the arena also frees its mutex — nothing leaks across TTL
// sweeps or LRU eviction.
type entry struct {
	mu  sync.Mutex
	ctx *Context
}

// Hints is the subset of conversation state the reasoning analyzer (C5)
// consults for its one-level error escalation, kept free of any
// dependency on the reasoning package so the two can evolve independently.
type Hints struct {
	ErrorCount                  int
	PreviousRequestedMoreTokens bool
}

func (e *entry) hints() Hints {
	return Hints{
		ErrorCount:                  e.ctx.ErrorCount,
		PreviousRequestedMoreTokens: e.ctx.LastMaxTokensRequested > e.ctx.LastOutputTokensReturned,
	}
}

func (e *entry) snapshot() Context {
	return *e.ctx
}
