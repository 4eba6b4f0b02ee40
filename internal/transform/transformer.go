// Package transform implements the universal transformer (C6): mapping
// a validated, dialect-neutral request into the unified backend-facing
// Request, per spec §4.6.
package transform

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/unified"
	"github.com/laiskydev/respgate/internal/validate"
)

// maxUnifiedRequestBytes is the size cap from spec §4.6.
const maxUnifiedRequestBytes = 10 * 1024 * 1024

// Input bundles everything the transformer needs beyond the validated
// result: the effort C5 picked, any threaded conversation state, and the
// per-request identifiers C7/C12 assign.
type Input struct {
	Result             *validate.Result
	Effort             unified.ReasoningEffort
	PreviousResponseID string
	ConversationID     string
	CorrelationID      string
	ClientIdentityTag  string // deterministic per-credential tag for upstream abuse controls
}

// Build produces a unified.Request from in, per spec §4.6.
func Build(in Input) (*unified.Request, error) {
	messages := mergeSystemMessage(in.Result.System, in.Result.Messages)

	req := &unified.Request{
		Model:              in.Result.Model,
		Input:              messages,
		ReasoningEffort:    in.Effort,
		PreviousResponseID: in.PreviousResponseID,
		ConversationID:     in.ConversationID,
		Tools:              in.Result.Tools,
		MaxOutputTokens:    in.Result.MaxOutputTokens,
		Temperature:        in.Result.Temperature,
		TopP:               in.Result.TopP,
		TopK:               in.Result.TopK,
		Stop:               in.Result.Stop,
		Stream:             in.Result.Stream,
		CorrelationID:      correlationID(in.CorrelationID),
		UserTag:            in.ClientIdentityTag,
	}

	if err := checkSize(req); err != nil {
		return nil, err
	}
	return req, nil
}

// mergeSystemMessage prepends a synthetic system message built from a
// Claude-dialect `system` string, if any (spec §4.6). OpenAI-dialect
// system messages are already folded into Messages by the validator.
func mergeSystemMessage(system string, messages []unified.Message) []unified.Message {
	if system == "" {
		return messages
	}
	synthetic := unified.Message{
		Role:   unified.RoleSystem,
		Blocks: []unified.Block{{Type: unified.BlockText, Text: system}},
	}
	return append([]unified.Message{synthetic}, messages...)
}

func correlationID(existing string) string {
	if existing != "" {
		return existing
	}
	return uuid.NewString()
}

func checkSize(req *unified.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return apperr.New(apperr.KindTransformation, "serialize unified request", err)
	}
	if len(body) > maxUnifiedRequestBytes {
		return &apperr.Error{Kind: apperr.KindTransformation, Message: "unified request exceeds 10 MiB after transformation"}
	}
	return nil
}
