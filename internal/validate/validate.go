// Package validate implements the validator/sanitizer (C4): shape
// checks, control-character stripping, and injection-pattern rejection
// over a decoded request, per spec §4.4. It never mutates its input; it
// always returns a new, normalized value.
package validate

import (
	"encoding/json"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/unified"
	"github.com/laiskydev/respgate/internal/wire"
)

var structValidator = validator.New()

// modelIDPattern enforces the model identifier shape from spec §4.4.
var modelIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// controlChars matches the byte ranges spec §4.4 requires stripped from
// text content: U+0000-U+0008, U+000B, U+000C, U+000E-U+001F, U+007F.
var controlChars = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

// securityPatterns are the injection signatures that trigger a hard
// SecurityError rejection, per spec §4.4.
var securityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\{\{.*?\}\}`),
	regexp.MustCompile(`(?i)<script[\s>]`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:[a-z/+.-]+;base64`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

const maxTextBytes = 8 * 1024 * 1024

// Result is the normalized, dialect-neutral request the universal
// transformer (C6) consumes.
type Result struct {
	Model           string
	System          string
	Messages        []unified.Message
	MaxOutputTokens int
	Temperature     *float64
	TopP            *float64
	TopK            *int
	Stop            []string
	Stream          bool
	Tools           []unified.ToolDeclaration
}

// ValidateClaude validates and sanitizes a decoded Claude-dialect request.
func ValidateClaude(req *wire.ClaudeRequest) (*Result, error) {
	if req == nil {
		return nil, apperr.Validation("empty request body")
	}
	if err := structValidator.Struct(req); err != nil {
		return nil, apperr.New(apperr.KindValidation, "claude request shape", err)
	}
	if !modelIDPattern.MatchString(req.Model) {
		return nil, apperr.Validation("invalid model identifier: %s", req.Model)
	}
	if err := checkStopSequences(req.StopSequences); err != nil {
		return nil, err
	}

	messages := make([]unified.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		normalized, err := normalizeClaudeMessage(m)
		if err != nil {
			return nil, err
		}
		messages = append(messages, normalized)
	}

	system, err := sanitizeText(req.System)
	if err != nil {
		return nil, err
	}

	tools := make([]unified.ToolDeclaration, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, unified.ToolDeclaration{Name: t.Name, Description: t.Description, Schema: t.InputSchema})
	}

	result := &Result{
		Model:           req.Model,
		System:          system,
		Messages:        messages,
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		Stop:            append([]string(nil), req.StopSequences...),
		Stream:          req.Stream,
		Tools:           tools,
	}
	return result, nil
}

// ValidateOpenAI validates and sanitizes a decoded OpenAI-dialect request.
func ValidateOpenAI(req *wire.OpenAIRequest) (*Result, error) {
	if req == nil {
		return nil, apperr.Validation("empty request body")
	}
	if req.Prompt != "" {
		return nil, apperr.Validation("request must not contain both 'prompt' and 'messages'")
	}
	if err := structValidator.Struct(req); err != nil {
		return nil, apperr.New(apperr.KindValidation, "openai request shape", err)
	}
	if !modelIDPattern.MatchString(req.Model) {
		return nil, apperr.Validation("invalid model identifier: %s", req.Model)
	}

	maxTokens, err := resolveMaxTokens(req)
	if err != nil {
		return nil, err
	}
	if err := checkStopSequences(req.Stop); err != nil {
		return nil, err
	}

	messages := make([]unified.Message, 0, len(req.Messages))
	var system string
	for _, m := range req.Messages {
		normalized, err := normalizeOpenAIMessage(m)
		if err != nil {
			return nil, err
		}
		if normalized.Role == unified.RoleSystem && system == "" {
			system = normalized.PlainText()
			continue
		}
		messages = append(messages, normalized)
	}

	tools := make([]unified.ToolDeclaration, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, unified.ToolDeclaration{Name: t.Function.Name, Description: t.Function.Description, Schema: t.Function.Parameters})
	}

	result := &Result{
		Model:           req.Model,
		System:          system,
		Messages:        messages,
		MaxOutputTokens: maxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		Stop:            append([]string(nil), req.Stop...),
		Stream:          req.Stream,
		Tools:           tools,
	}
	return result, nil
}

func resolveMaxTokens(req *wire.OpenAIRequest) (int, error) {
	switch {
	case req.MaxCompletionTokens != nil:
		return *req.MaxCompletionTokens, nil
	case req.MaxTokens != nil:
		return *req.MaxTokens, nil
	default:
		return 0, apperr.Validation("max_completion_tokens is required")
	}
}

func checkStopSequences(stop []string) error {
	if len(stop) > 4 {
		return apperr.Validation("at most 4 stop sequences are allowed")
	}
	for _, s := range stop {
		if len(s) > 20 {
			return apperr.Validation("stop sequence exceeds 20 characters")
		}
		if controlChars.MatchString(s) {
			return apperr.Validation("stop sequence contains control characters")
		}
	}
	return nil
}

func normalizeClaudeMessage(m wire.ClaudeMessage) (unified.Message, error) {
	text, blocks, err := wire.DecodeMessageContent(m.RawContent)
	if err != nil {
		return unified.Message{}, apperr.New(apperr.KindValidation, "decode message content", err)
	}

	out := unified.Message{Role: unified.Role(m.Role)}
	if blocks == nil {
		sanitized, err := sanitizeText(text)
		if err != nil {
			return unified.Message{}, err
		}
		out.Blocks = []unified.Block{{Type: unified.BlockText, Text: sanitized}}
		return out, nil
	}

	for _, b := range blocks {
		block, err := claudeBlockToUnified(b)
		if err != nil {
			return unified.Message{}, err
		}
		out.Blocks = append(out.Blocks, block)
	}
	return out, nil
}

func claudeBlockToUnified(b wire.ClaudeContentBlock) (unified.Block, error) {
	switch b.Type {
	case "text":
		sanitized, err := sanitizeText(b.Text)
		if err != nil {
			return unified.Block{}, err
		}
		return unified.Block{Type: unified.BlockText, Text: sanitized}, nil
	case "tool_use":
		return unified.Block{Type: unified.BlockToolUse, ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input}, nil
	case "tool_result":
		return unified.Block{Type: unified.BlockToolResult, ToolResultTargetID: b.ToolUseID, ToolResultPayload: b.Content, ToolResultIsError: b.IsError}, nil
	case "image":
		if b.Source == nil {
			return unified.Block{}, apperr.Validation("image block missing source")
		}
		if err := validateImagePayload(b.Source.MediaType, b.Source.Data); err != nil {
			return unified.Block{}, err
		}
		return unified.Block{Type: unified.BlockImage, ImageMediaType: b.Source.MediaType, ImageData: b.Source.Data}, nil
	default:
		return unified.Block{}, apperr.Validation("unsupported content block type: %s", b.Type)
	}
}

func normalizeOpenAIMessage(m wire.OpenAIMessage) (unified.Message, error) {
	var content []wire.OpenAIContentPart
	text, asParts, isParts, err := decodeOpenAIContent(m.RawContent)
	if err != nil {
		return unified.Message{}, err
	}
	if isParts {
		content = asParts
	}

	out := unified.Message{Role: unified.Role(m.Role)}
	if !isParts {
		sanitized, err := sanitizeText(text)
		if err != nil {
			return unified.Message{}, err
		}
		out.Blocks = []unified.Block{{Type: unified.BlockText, Text: sanitized}}
	} else {
		for _, part := range content {
			switch part.Type {
			case "text":
				sanitized, err := sanitizeText(part.Text)
				if err != nil {
					return unified.Message{}, err
				}
				out.Blocks = append(out.Blocks, unified.Block{Type: unified.BlockText, Text: sanitized})
			case "image_url":
				if part.ImageURL == nil {
					return unified.Message{}, apperr.Validation("image_url block missing url")
				}
				out.Blocks = append(out.Blocks, unified.Block{Type: unified.BlockImage, ImageData: part.ImageURL.URL})
			}
		}
	}

	if m.Role == "tool" {
		out.Blocks = append(out.Blocks, unified.Block{Type: unified.BlockToolResult, ToolResultTargetID: m.ToolCallID})
	}
	for _, call := range m.ToolCalls {
		out.Blocks = append(out.Blocks, unified.Block{Type: unified.BlockToolUse, ToolUseID: call.ID, ToolName: call.Function.Name})
	}

	return out, nil
}

func decodeOpenAIContent(raw []byte) (text string, parts []wire.OpenAIContentPart, isParts bool, err error) {
	if len(raw) == 0 {
		return "", nil, false, nil
	}
	var asString string
	if jsonErr := json.Unmarshal(raw, &asString); jsonErr == nil {
		return asString, nil, false, nil
	}
	if jsonErr := json.Unmarshal(raw, &parts); jsonErr == nil {
		return "", parts, true, nil
	}
	return "", nil, false, apperr.Validation("unrecognized message content shape")
}

func sanitizeText(text string) (string, error) {
	if len(text) > maxTextBytes {
		return "", apperr.Validation("text content exceeds 8 MiB")
	}
	for _, pattern := range securityPatterns {
		if pattern.MatchString(text) {
			return "", apperr.Security("text content matches a rejected injection pattern")
		}
	}
	return controlChars.ReplaceAllString(text, ""), nil
}

// Clone returns a deep copy of r so callers can mutate the copy without
// affecting the validator's own normalized value (spec §4.4: "the
// original input is never mutated").
func Clone(r *Result) *Result {
	var out Result
	_ = copier.CopyWithOption(&out, r, copier.Option{DeepCopy: true})
	return &out
}
