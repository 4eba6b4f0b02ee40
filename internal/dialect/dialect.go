// Package dialect implements the format detector (C3): a pure function
// over a decoded request body that decides whether it is Claude-shaped
// or OpenAI-shaped, per spec §4.3. The decision is immutable for the
// remainder of the request and drives both C6 (transform) and C10
// (response translator).
package dialect

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Dialect is the tagged variant from spec §3.
type Dialect string

const (
	Claude Dialect = "claude"
	OpenAI Dialect = "openai"
)

// Detect inspects the raw decoded JSON body plus the request's
// `anthropic-version` header and returns the dialect, following the
// decision order in spec §4.3. Real Claude clients send
// `anthropic-version` as an HTTP header, not a body field, so
// anthropicVersionHeader is the authoritative form of that indicator;
// callers pass "" when the header was absent. It never returns an error:
// on anything unrecognizable it defaults to Claude, as the spec mandates,
// and the caller is expected to log that fallback at warn level.
func Detect(body []byte, anthropicVersionHeader string) Dialect {
	if anthropicVersionHeader != "" {
		return Claude
	}

	if !gjson.ValidBytes(body) {
		return Claude
	}

	root := gjson.ParseBytes(body)

	claude := claudeIndicators(root)
	openai := openAIIndicators(root)

	switch {
	case claude && openai:
		// Backward compatibility: Claude wins when both sets trigger.
		return Claude
	case claude:
		return Claude
	case openai:
		return OpenAI
	default:
		return Claude
	}
}

func claudeIndicators(root gjson.Result) bool {
	// Defensive duplicate of the header check in Detect, in case a
	// non-standard client folds the version into the body instead of
	// sending it as a header.
	if root.Get("anthropic-version").Exists() {
		return true
	}
	if sys := root.Get("system"); sys.Exists() && sys.Type == gjson.String {
		return true
	}
	if hasMaxTokens := root.Get("max_tokens").Exists(); hasMaxTokens && !root.Get("max_completion_tokens").Exists() {
		return true
	}
	if messagesHaveTypedBlocks(root) {
		return true
	}
	if toolsHaveInputSchema(root) {
		return true
	}
	return false
}

func messagesHaveTypedBlocks(root gjson.Result) bool {
	messages := root.Get("messages")
	if !messages.IsArray() {
		return false
	}

	found := false
	messages.ForEach(func(_, msg gjson.Result) bool {
		content := msg.Get("content")
		if !content.IsArray() {
			return true
		}
		content.ForEach(func(_, block gjson.Result) bool {
			switch block.Get("type").String() {
			case "text", "image", "tool_use", "tool_result":
				found = true
				return false
			}
			return true
		})
		return !found
	})
	return found
}

func toolsHaveInputSchema(root gjson.Result) bool {
	found := false
	for _, key := range []string{"tools", "tool"} {
		root.Get(key).ForEach(func(_, tool gjson.Result) bool {
			if tool.Get("input_schema").Exists() {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

func openAIIndicators(root gjson.Result) bool {
	hasMessages := root.Get("messages").IsArray()

	strongIndicator := false
	if root.Get("max_completion_tokens").Exists() {
		strongIndicator = true
	}
	if toolsAreOpenAIShaped(root) {
		strongIndicator = true
	}
	if responseFormat := root.Get("response_format.type").String(); responseFormat == "text" || responseFormat == "json_object" {
		strongIndicator = true
	}

	if strongIndicator {
		return true
	}

	if hasMessages && hasToolRoleMessage(root) {
		return true
	}

	return false
}

func toolsAreOpenAIShaped(root gjson.Result) bool {
	found := false
	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("type").String() == "function" && tool.Get("function.parameters").Exists() {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasToolRoleMessage(root gjson.Result) bool {
	found := false
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "tool" {
			found = true
			return false
		}
		return true
	})
	return found
}

// IsValidJSON reports whether body parses as JSON at all, used by the
// wire codec before handing the body to Detect.
func IsValidJSON(body []byte) bool {
	return json.Valid(body)
}
