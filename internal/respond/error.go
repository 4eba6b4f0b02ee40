package respond

import (
	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/dialect"
	"github.com/laiskydev/respgate/internal/wire"
)

// ErrorEnvelope builds the dialect-correct error body for err (spec §7),
// scrubbing the message of any credential-shaped substring first.
func ErrorEnvelope(d dialect.Dialect, err *apperr.Error) any {
	message := ScrubError(err.Message)
	if d == dialect.OpenAI {
		return wire.OpenAIErrorEnvelope{Error: wire.OpenAIErrorDetail{
			Message: message,
			Type:    string(err.Kind),
		}}
	}
	return wire.ClaudeErrorEnvelope{Type: "error", Error: wire.ClaudeErrorDetail{
		Type:    string(err.Kind),
		Message: message,
	}}
}
