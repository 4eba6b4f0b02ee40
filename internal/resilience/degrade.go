package resilience

import (
	"fmt"

	"github.com/laiskydev/respgate/internal/reasoning"
	"github.com/laiskydev/respgate/internal/unified"
)

// degradedMessageTemplate is the static apology body the graceful
// degradation path returns when retries are exhausted on a failure
// outside the service-unavailable classes (spec §4.8); an open breaker
// gets an error envelope instead. It names no internal detail — the
// upstream error itself is logged, never echoed to the client.
const degradedMessageTemplate = "The assistant is temporarily unavailable for model %q. Please retry shortly."

// Degrade builds a dialect-neutral unified.Response standing in for a
// call that could not reach upstream, with Degraded set to mark it as a
// fallback response. Usage is computed
// from the real tokenizer (spec §4.8 expansion) rather than left zero, so
// client-side accounting of a degraded turn is still meaningful.
func Degrade(model string) *unified.Response {
	message := fmt.Sprintf(degradedMessageTemplate, model)
	outputTokens := reasoning.CountTokens(message)

	return &unified.Response{
		Model: model,
		Output: []unified.OutputItem{
			{Type: unified.OutputText, Text: message},
		},
		Usage: unified.Usage{
			InputTokens:  0,
			OutputTokens: outputTokens,
			TotalTokens:  outputTokens,
		},
		FinishReason: unified.FinishStop,
		Degraded:     true,
	}
}
