// Package respond implements the response translator (C10): mapping a
// unified.Response (or stream of unified.StreamChunk) back into the
// client's original wire dialect, per spec §4.10.
package respond

import (
	"encoding/json"
	"regexp"

	"github.com/samber/lo"

	"github.com/laiskydev/respgate/internal/dialect"
	"github.com/laiskydev/respgate/internal/unified"
	"github.com/laiskydev/respgate/internal/wire"
)

// visibleOutput filters reasoning items out of a unified.Response's
// output sequence, enforcing "reasoning is never forwarded to the client"
// (spec §4.10) for ToClaude and ToOpenAI. The streaming writers below do
// not use it; they skip reasoning-delta chunks in their own switch.
func visibleOutput(items []unified.OutputItem) []unified.OutputItem {
	return lo.Filter(items, func(item unified.OutputItem, _ int) bool {
		return item.Type != unified.OutputReasoning
	})
}

// ToClaude builds the non-streaming Claude-dialect response for resp.
// includeReasoningTokens mirrors INCLUDE_REASONING_IN_OUTPUT_TOKENS
// (config.Config.IncludeReasoningTokens, spec §9 Open Question).
func ToClaude(resp *unified.Response, includeReasoningTokens bool) *wire.ClaudeResponse {
	var blocks []wire.ClaudeContentBlock
	for _, item := range visibleOutput(resp.Output) {
		switch item.Type {
		case unified.OutputText:
			blocks = append(blocks, wire.ClaudeContentBlock{Type: "text", Text: item.Text})
		case unified.OutputToolCall:
			blocks = append(blocks, wire.ClaudeContentBlock{
				Type:  "tool_use",
				ID:    item.ToolCallID,
				Name:  item.ToolCallName,
				Input: item.ToolCallArgs,
			})
		case unified.OutputToolResult:
			blocks = append(blocks, wire.ClaudeContentBlock{
				Type:      "tool_result",
				ToolUseID: item.ToolResultTargetID,
				Content:   item.ToolResultPayload,
			})
		}
	}

	return &wire.ClaudeResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      resp.Model,
		Content:    blocks,
		StopReason: claudeStopReason(resp.FinishReason),
		Usage: wire.ClaudeUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: visibleOutputTokens(resp, includeReasoningTokens),
		},
	}
}

// ToOpenAI builds the non-streaming OpenAI-dialect response for resp.
func ToOpenAI(resp *unified.Response, createdAt int64, includeReasoningTokens bool) *wire.OpenAIResponse {
	var text string
	var toolCalls []wire.OpenAIToolCall
	for _, item := range visibleOutput(resp.Output) {
		switch item.Type {
		case unified.OutputText:
			text += item.Text
		case unified.OutputToolCall:
			toolCalls = append(toolCalls, wire.OpenAIToolCall{
				ID:   item.ToolCallID,
				Type: "function",
				Function: wire.OpenAIToolCallFunction{
					Name:      item.ToolCallName,
					Arguments: stringifyArgs(item.ToolCallArgs),
				},
			})
		}
	}

	outputTokens := visibleOutputTokens(resp, includeReasoningTokens)
	return &wire.OpenAIResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: createdAt,
		Model:   resp.Model,
		Choices: []wire.OpenAIChoice{{
			Index: 0,
			Message: wire.OpenAIRespMessage{
				Role:      "assistant",
				Content:   text,
				ToolCalls: toolCalls,
			},
			FinishReason: openAIFinishReason(resp.FinishReason),
		}},
		Usage: wire.OpenAIUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      resp.Usage.InputTokens + outputTokens,
		},
	}
}

// visibleOutputTokens reports the output token count a client should
// see. Azure Responses API usage already separates ReasoningTokens from
// OutputTokens, so by default (includeReasoningTokens=false, matching
// Anthropic/OpenAI's own public APIs which never bill reasoning tokens
// into the visible completion count) it subtracts them back out;
// setting INCLUDE_REASONING_IN_OUTPUT_TOKENS restores upstream's raw
// total for operators who want it to match their Azure billing exactly.
func visibleOutputTokens(resp *unified.Response, includeReasoningTokens bool) int {
	if includeReasoningTokens {
		return resp.Usage.OutputTokens
	}
	visible := resp.Usage.OutputTokens - resp.Usage.ReasoningTokens
	if visible < 0 {
		return 0
	}
	return visible
}

func claudeStopReason(reason unified.FinishReason) string {
	switch reason {
	case unified.FinishToolCalls:
		return "tool_use"
	case unified.FinishLength:
		return "max_tokens"
	default:
		return "end_turn"
	}
}

func openAIFinishReason(reason unified.FinishReason) string {
	switch reason {
	case unified.FinishToolCalls:
		return "tool_calls"
	case unified.FinishLength:
		return "length"
	default:
		return "stop"
	}
}

func stringifyArgs(args map[string]any) string {
	body, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(body)
}

// StreamToClaude drains chunks, writing the full Claude SSE event
// sequence (message_start, content_block_*, message_delta, message_stop)
// through w. The caller is responsible for closing chunks' producer.
func StreamToClaude(w *wire.SSEWriter, model string, chunks <-chan unified.StreamChunk, includeReasoningTokens bool) error {
	if err := w.WriteEvent(wire.ClaudeMessageStart{
		Type: "message_start",
		Message: wire.ClaudeStreamingHeader{
			Type:  "message",
			Role:  "assistant",
			Model: model,
		},
	}); err != nil {
		return err
	}

	blockOpen := false
	for chunk := range chunks {
		switch chunk.Type {
		case unified.StreamReasoningDelta:
			continue // never forwarded, spec §4.10
		case unified.StreamTextDelta:
			if !blockOpen {
				if err := w.WriteEvent(wire.ClaudeContentBlockStart{
					Type:         "content_block_start",
					Index:        chunk.OutputIndex,
					ContentBlock: wire.ClaudeContentBlock{Type: "text"},
				}); err != nil {
					return err
				}
				blockOpen = true
			}
			if err := w.WriteEvent(wire.ClaudeContentBlockDelta{
				Type:  "content_block_delta",
				Index: chunk.OutputIndex,
				Delta: wire.ClaudeDeltaText{Type: "text_delta", Text: chunk.TextDelta},
			}); err != nil {
				return err
			}
		case unified.StreamCompleted:
			if blockOpen {
				if err := w.WriteEvent(wire.ClaudeContentBlockStop{Type: "content_block_stop", Index: chunk.OutputIndex}); err != nil {
					return err
				}
			}
			if err := w.WriteEvent(wire.ClaudeMessageDelta{
				Type:  "message_delta",
				Delta: wire.ClaudeMessageDeltaBody{StopReason: claudeStopReason(chunk.FinishReason)},
				Usage: wire.ClaudeUsage{InputTokens: chunk.Usage.InputTokens, OutputTokens: visibleOutputTokens(&unified.Response{Usage: chunk.Usage}, includeReasoningTokens)},
			}); err != nil {
				return err
			}
			return w.WriteEvent(wire.ClaudeMessageStop{Type: "message_stop"})
		}
	}
	return nil
}

// StreamToOpenAI drains chunks, writing the OpenAI chat.completion.chunk
// sequence through w, terminated by the literal `[DONE]` line.
func StreamToOpenAI(w *wire.SSEWriter, id, model string, createdAt int64, chunks <-chan unified.StreamChunk, includeReasoningTokens bool) error {
	first := true
	for chunk := range chunks {
		switch chunk.Type {
		case unified.StreamReasoningDelta:
			continue
		case unified.StreamTextDelta:
			delta := wire.OpenAIChunkDelta{Content: chunk.TextDelta}
			if first {
				delta.Role = "assistant"
				first = false
			}
			if err := w.WriteEvent(wire.OpenAIChunk{
				ID: id, Object: "chat.completion.chunk", Created: createdAt, Model: model,
				Choices: []wire.OpenAIChunkChoice{{Index: 0, Delta: delta}},
			}); err != nil {
				return err
			}
		case unified.StreamCompleted:
			finish := openAIFinishReason(chunk.FinishReason)
			completionTokens := visibleOutputTokens(&unified.Response{Usage: chunk.Usage}, includeReasoningTokens)
			if err := w.WriteEvent(wire.OpenAIChunk{
				ID: id, Object: "chat.completion.chunk", Created: createdAt, Model: model,
				Choices: []wire.OpenAIChunkChoice{{Index: 0, Delta: wire.OpenAIChunkDelta{}, FinishReason: &finish}},
				Usage: &wire.OpenAIUsage{
					PromptTokens:     chunk.Usage.InputTokens,
					CompletionTokens: completionTokens,
					TotalTokens:      chunk.Usage.InputTokens + completionTokens,
				},
			}); err != nil {
				return err
			}
			return w.WriteDone()
		}
	}
	return nil
}

// scrubPattern matches credential- and PII-shaped substrings (spec §4.10
// expansion): bearer tokens, raw API keys, and email addresses, so an
// upstream error message never leaks them to the client.
var scrubPattern = regexp.MustCompile(`(?i)(bearer\s+[a-z0-9._\-]+|sk-[a-z0-9]{16,}|[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,})`)

// ScrubError returns msg with any credential-shaped or email-shaped
// substring replaced, for safe inclusion in a client-visible error body.
func ScrubError(msg string) string {
	return scrubPattern.ReplaceAllString(msg, "[redacted]")
}

// DetectedDialect re-exports dialect.Detect so callers building an error
// envelope after a mid-pipeline failure (when no validated request is
// available) can still pick the right wire shape from the raw body and
// the anthropic-version header.
func DetectedDialect(body []byte, anthropicVersionHeader string) dialect.Dialect {
	return dialect.Detect(body, anthropicVersionHeader)
}
