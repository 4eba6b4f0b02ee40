package respond

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/unified"
)

func sampleResponse() *unified.Response {
	return &unified.Response{
		ID:    "resp-1",
		Model: "gpt-5",
		Output: []unified.OutputItem{
			{Type: unified.OutputReasoning, Text: "internal deliberation, never shown"},
			{Type: unified.OutputText, Text: "hello"},
			{Type: unified.OutputToolCall, ToolCallID: "call-1", ToolCallName: "lookup", ToolCallArgs: map[string]any{"q": "x"}},
		},
		Usage:        unified.Usage{InputTokens: 10, OutputTokens: 20, ReasoningTokens: 5},
		FinishReason: unified.FinishToolCalls,
	}
}

func TestToClaudeFiltersReasoning(t *testing.T) {
	claude := ToClaude(sampleResponse(), false)
	require.Len(t, claude.Content, 2)
	for _, block := range claude.Content {
		require.NotEqual(t, "reasoning", block.Type)
	}
	require.Equal(t, "tool_use", claude.StopReason)
	require.Equal(t, 15, claude.Usage.OutputTokens)
}

func TestToClaudeIncludesReasoningTokensWhenConfigured(t *testing.T) {
	claude := ToClaude(sampleResponse(), true)
	require.Equal(t, 20, claude.Usage.OutputTokens)
}

func TestToOpenAIFiltersReasoningAndStringifiesArgs(t *testing.T) {
	openai := ToOpenAI(sampleResponse(), 1234, false)
	require.Equal(t, "hello", openai.Choices[0].Message.Content)
	require.Len(t, openai.Choices[0].Message.ToolCalls, 1)
	require.JSONEq(t, `{"q":"x"}`, openai.Choices[0].Message.ToolCalls[0].Function.Arguments)
	require.Equal(t, "tool_calls", openai.Choices[0].FinishReason)
	require.EqualValues(t, 15, openai.Usage.CompletionTokens)
}

func TestStopReasonMapping(t *testing.T) {
	require.Equal(t, "end_turn", claudeStopReason(unified.FinishStop))
	require.Equal(t, "tool_use", claudeStopReason(unified.FinishToolCalls))
	require.Equal(t, "max_tokens", claudeStopReason(unified.FinishLength))

	require.Equal(t, "stop", openAIFinishReason(unified.FinishStop))
	require.Equal(t, "tool_calls", openAIFinishReason(unified.FinishToolCalls))
	require.Equal(t, "length", openAIFinishReason(unified.FinishLength))
}

func TestScrubErrorRedactsCredentials(t *testing.T) {
	msg := "upstream rejected Bearer sk-abcdef1234567890abcd sent by user@example.com"
	scrubbed := ScrubError(msg)
	require.NotContains(t, scrubbed, "sk-abcdef1234567890abcd")
	require.NotContains(t, scrubbed, "user@example.com")
	require.Contains(t, scrubbed, "[redacted]")
}

func TestStreamToClaudeSequence(t *testing.T) {
	chunks := make(chan unified.StreamChunk, 4)
	chunks <- unified.StreamChunk{Type: unified.StreamReasoningDelta, TextDelta: "thinking..."}
	chunks <- unified.StreamChunk{Type: unified.StreamTextDelta, TextDelta: "hi"}
	chunks <- unified.StreamChunk{Type: unified.StreamCompleted, FinishReason: unified.FinishStop, Usage: unified.Usage{InputTokens: 1, OutputTokens: 2}}
	close(chunks)

	rec := newRecordingSSE(t)
	err := StreamToClaude(rec.writer(), "claude-3", chunks, false)
	require.NoError(t, err)

	types := rec.eventTypes()
	require.Equal(t, []string{"message_start", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}, types)
}

func TestStreamToOpenAISequence(t *testing.T) {
	chunks := make(chan unified.StreamChunk, 4)
	chunks <- unified.StreamChunk{Type: unified.StreamTextDelta, TextDelta: "hi"}
	chunks <- unified.StreamChunk{Type: unified.StreamCompleted, FinishReason: unified.FinishStop, Usage: unified.Usage{InputTokens: 1, OutputTokens: 2}}
	close(chunks)

	rec := newRecordingSSE(t)
	err := StreamToOpenAI(rec.writer(), "chatcmpl-1", "gpt-5", 1000, chunks, false)
	require.NoError(t, err)
	require.Contains(t, rec.raw(), "[DONE]")
}

func TestStreamToClaudeTerminatesOnSynthesizedTruncationMarker(t *testing.T) {
	chunks := make(chan unified.StreamChunk, 2)
	chunks <- unified.StreamChunk{Type: unified.StreamTextDelta, TextDelta: "hi"}
	chunks <- unified.StreamChunk{Type: unified.StreamCompleted, FinishReason: unified.FinishLength}
	close(chunks)

	rec := newRecordingSSE(t)
	err := StreamToClaude(rec.writer(), "claude-3", chunks, false)
	require.NoError(t, err)

	types := rec.eventTypes()
	require.Equal(t, []string{"message_start", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}, types)
}

func TestStreamToOpenAITerminatesOnSynthesizedTruncationMarker(t *testing.T) {
	chunks := make(chan unified.StreamChunk, 2)
	chunks <- unified.StreamChunk{Type: unified.StreamTextDelta, TextDelta: "hi"}
	chunks <- unified.StreamChunk{Type: unified.StreamCompleted, FinishReason: unified.FinishLength}
	close(chunks)

	rec := newRecordingSSE(t)
	err := StreamToOpenAI(rec.writer(), "chatcmpl-1", "gpt-5", 1000, chunks, false)
	require.NoError(t, err)
	require.Contains(t, rec.raw(), "[DONE]")
}
