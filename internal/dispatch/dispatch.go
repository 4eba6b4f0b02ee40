// Package dispatch implements the upstream dispatcher (C9): translating a
// unified.Request into a call against Azure OpenAI (primary) or AWS
// Bedrock (secondary), per spec §4.9.
package dispatch

import (
	"context"

	"github.com/laiskydev/respgate/internal/unified"
)

// Backend is one upstream the dispatcher can target.
type Backend interface {
	// Name identifies the backend for logging and metrics ("azure", "bedrock").
	Name() string

	// Dispatch sends req and returns the full response. Callers (the
	// resilience kernel) are responsible for retry/backoff/circuit
	// breaking around this call; Dispatch itself makes exactly one
	// upstream attempt.
	Dispatch(ctx context.Context, req *unified.Request) (*unified.Response, error)

	// DispatchStream sends req and returns a channel of StreamChunk,
	// closed when the upstream stream ends or ctx is done. Exactly one
	// of the channel's final chunks carries FinishReason set.
	DispatchStream(ctx context.Context, req *unified.Request) (<-chan unified.StreamChunk, error)
}

// Router selects a Backend for a request. The default Router always
// prefers Primary and falls back to Secondary only when Secondary is
// non-nil and the caller explicitly asks for it (spec §1: Bedrock is
// secondary, not a silent automatic failover target — the resilience
// kernel's breaker/degrade path governs failover policy, not the router).
type Router struct {
	Primary   Backend
	Secondary Backend // nil if AWS_BEDROCK_REGION is unset
}

// Select returns the backend to use: Secondary only if useSecondary is
// true and configured, Primary otherwise.
func (r Router) Select(useSecondary bool) Backend {
	if useSecondary && r.Secondary != nil {
		return r.Secondary
	}
	return r.Primary
}
