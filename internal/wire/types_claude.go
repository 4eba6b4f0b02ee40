package wire

import "encoding/json"

// ClaudeRequest is the decoded shape of a POST /v1/messages body in the
// Anthropic Messages dialect (spec §3).
type ClaudeRequest struct {
	Model         string                 `json:"model" validate:"required,max=100"`
	System        string                 `json:"system,omitempty"`
	Messages      []ClaudeMessage        `json:"messages" validate:"required,min=1,max=100,dive"`
	MaxTokens     int                    `json:"max_tokens" validate:"required,min=1,max=131072"`
	Temperature   *float64               `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	TopP          *float64               `json:"top_p,omitempty" validate:"omitempty,min=0,max=1"`
	TopK          *int                   `json:"top_k,omitempty" validate:"omitempty,min=1,max=100"`
	StopSequences []string               `json:"stop_sequences,omitempty" validate:"omitempty,max=4,dive,max=20"`
	Stream        bool                   `json:"stream,omitempty"`
	Tools         []ClaudeTool           `json:"tools,omitempty"`
	Metadata      map[string]any         `json:"metadata,omitempty"`
	Extra         map[string]json.RawMessage `json:"-"`
}

// ClaudeMessage is one turn in a Claude-dialect request. Content is
// either a plain string or a list of typed blocks (spec §3); RawContent
// preserves the original JSON so the decoder can disambiguate.
type ClaudeMessage struct {
	Role       string          `json:"role" validate:"required,oneof=system user assistant tool"`
	RawContent json.RawMessage `json:"content"`
}

// ClaudeContentBlock is one element of a typed content-block list.
type ClaudeContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	Source *ClaudeImageSource `json:"source,omitempty"`
}

// ClaudeImageSource carries an opaque inline image payload.
type ClaudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ClaudeTool is a tool declaration in the Claude dialect.
type ClaudeTool struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ClaudeUsage is the Claude-dialect usage envelope (spec §4.10).
type ClaudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ClaudeResponse is the non-streaming Claude-dialect reply shape.
type ClaudeResponse struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Role       string               `json:"role"`
	Model      string               `json:"model"`
	Content    []ClaudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
	Usage      ClaudeUsage          `json:"usage"`
}

// ClaudeErrorEnvelope is the dialect-correct error shape from spec §4.8/§7.
type ClaudeErrorEnvelope struct {
	Type  string           `json:"type"`
	Error ClaudeErrorDetail `json:"error"`
}

// ClaudeErrorDetail is the nested error payload of ClaudeErrorEnvelope.
type ClaudeErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Claude SSE event payloads (spec §4.10, §6).

type ClaudeMessageStart struct {
	Type    string                `json:"type"`
	Message ClaudeStreamingHeader `json:"message"`
}

// ClaudeStreamingHeader is the partial message object sent with message_start.
type ClaudeStreamingHeader struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Role    string      `json:"role"`
	Model   string      `json:"model"`
	Content []any       `json:"content"`
	Usage   ClaudeUsage `json:"usage"`
}

type ClaudeContentBlockStart struct {
	Type         string             `json:"type"`
	Index        int                `json:"index"`
	ContentBlock ClaudeContentBlock `json:"content_block"`
}

type ClaudeContentBlockDelta struct {
	Type  string          `json:"type"`
	Index int             `json:"index"`
	Delta ClaudeDeltaText `json:"delta"`
}

// ClaudeDeltaText carries an incremental text fragment.
type ClaudeDeltaText struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type ClaudeContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type ClaudeMessageDelta struct {
	Type  string                 `json:"type"`
	Delta ClaudeMessageDeltaBody `json:"delta"`
	Usage ClaudeUsage            `json:"usage"`
}

// ClaudeMessageDeltaBody carries the terminal stop_reason for a stream.
type ClaudeMessageDeltaBody struct {
	StopReason string `json:"stop_reason"`
}

type ClaudeMessageStop struct {
	Type string `json:"type"`
}
