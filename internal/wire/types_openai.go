package wire

import "encoding/json"

// OpenAIRequest is the decoded shape of a POST /v1/chat/completions body
// in the OpenAI Chat Completions dialect (spec §3). Its field shapes are
// kept compatible with github.com/openai/openai-go/v3's public request
// types so a strict OpenAI client library can be pointed at this gateway.
type OpenAIRequest struct {
	Model               string              `json:"model" validate:"required,max=100"`
	Messages            []OpenAIMessage     `json:"messages" validate:"required,min=1,max=100,dive"`
	MaxCompletionTokens *int                `json:"max_completion_tokens,omitempty" validate:"omitempty,min=1,max=131072"`
	MaxTokens           *int                `json:"max_tokens,omitempty" validate:"omitempty,min=1,max=131072"`
	Prompt              string              `json:"prompt,omitempty"`
	Temperature         *float64            `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	TopP                *float64            `json:"top_p,omitempty" validate:"omitempty,min=0,max=1"`
	Stop                []string            `json:"stop,omitempty" validate:"omitempty,max=4,dive,max=20"`
	Stream              bool                `json:"stream,omitempty"`
	Tools               []OpenAITool        `json:"tools,omitempty"`
	ToolChoice          any                 `json:"tool_choice,omitempty"`
	ResponseFormat      *OpenAIRespFormat   `json:"response_format,omitempty"`
}

// OpenAIMessage is one turn in an OpenAI-dialect request.
type OpenAIMessage struct {
	Role       string          `json:"role" validate:"required,oneof=system user assistant tool"`
	RawContent json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
}

// OpenAIContentPart is one element of an OpenAI multi-part message content
// array (the OpenAI analogue of a Claude content block).
type OpenAIContentPart struct {
	Type     string             `json:"type"`
	Text     string             `json:"text,omitempty"`
	ImageURL *OpenAIImageURL    `json:"image_url,omitempty"`
}

// OpenAIImageURL carries an opaque image reference, forwarded as-is.
type OpenAIImageURL struct {
	URL string `json:"url"`
}

// OpenAITool is a function-tool declaration in the OpenAI dialect.
type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

// OpenAIToolFunction is the nested function body of OpenAITool.
type OpenAIToolFunction struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// OpenAIToolCall is an assistant-issued tool invocation.
type OpenAIToolCall struct {
	ID       string                   `json:"id"`
	Type     string                   `json:"type"`
	Function OpenAIToolCallFunction   `json:"function"`
}

// OpenAIToolCallFunction carries the name/args of an OpenAIToolCall.
type OpenAIToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAIRespFormat requests a specific output encoding.
type OpenAIRespFormat struct {
	Type string `json:"type" validate:"omitempty,oneof=text json_object"`
}

// OpenAIUsage is the OpenAI-dialect usage envelope (spec §4.10).
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIChoice is one element of a chat.completion's choices array.
type OpenAIChoice struct {
	Index        int                `json:"index"`
	Message      OpenAIRespMessage  `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

// OpenAIRespMessage is the assistant reply embedded in an OpenAIChoice.
type OpenAIRespMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
}

// OpenAIResponse is the non-streaming chat.completion reply shape.
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

// OpenAIErrorEnvelope is the dialect-correct error shape from spec §4.8/§7.
type OpenAIErrorEnvelope struct {
	Error OpenAIErrorDetail `json:"error"`
}

// OpenAIErrorDetail is the nested error payload of OpenAIErrorEnvelope.
type OpenAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// OpenAIChunkDelta carries an incremental assistant message fragment.
type OpenAIChunkDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
}

// OpenAIChunkChoice is one element of a chat.completion.chunk's choices array.
type OpenAIChunkChoice struct {
	Index        int              `json:"index"`
	Delta        OpenAIChunkDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

// OpenAIChunk is one chat.completion.chunk event (spec §4.10, §6).
type OpenAIChunk struct {
	ID      string              `json:"id"`
	Object  string              `json:"object"`
	Created int64               `json:"created"`
	Model   string              `json:"model"`
	Choices []OpenAIChunkChoice `json:"choices"`
	Usage   *OpenAIUsage        `json:"usage,omitempty"`
}
