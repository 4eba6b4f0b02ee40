package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/unified"
)

// AzureConfig names everything an AzureBackend needs to reach a single
// Azure OpenAI Responses API deployment (spec §4.9 expansion).
type AzureConfig struct {
	Endpoint   string // e.g. https://my-resource.openai.azure.com
	Deployment string
	APIVersion string

	// Static key, sent as the api-key header when TenantID is empty.
	APIKey string

	// Azure AD settings. When TenantID is set, APIKey is sent as a bearer
	// token instead of the api-key header; ClientID and ClientSecret are
	// not read by this backend and no token exchange is made.
	TenantID     string
	ClientID     string
	ClientSecret string

	HTTPClient *http.Client
}

// AzureBackend talks to Azure OpenAI's Responses API surface, the way the
// teacher's openai adaptor builds Azure deployment URLs and headers
// (`/openai/deployments/{model}/...?api-version=...`, `api-key` header for
// static keys).
type AzureBackend struct {
	cfg AzureConfig

	mu        sync.Mutex
	cachedJWT string
	jwtExpiry time.Time
}

// NewAzureBackend builds an AzureBackend, defaulting the HTTP client if
// the caller didn't supply one.
func NewAzureBackend(cfg AzureConfig) *AzureBackend {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 0} // caller's ctx governs the deadline
	}
	return &AzureBackend{cfg: cfg}
}

func (b *AzureBackend) Name() string { return "azure" }

func (b *AzureBackend) requestURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/responses?api-version=%s",
		strings.TrimRight(b.cfg.Endpoint, "/"), b.cfg.Deployment, b.cfg.APIVersion)
}

// azureRequestBody is the Responses API request shape, kept intentionally
// small: only the fields the unified.Request model carries.
type azureRequestBody struct {
	Model              string              `json:"model"`
	Input              []azureMessage      `json:"input"`
	PreviousResponseID string              `json:"previous_response_id,omitempty"`
	MaxOutputTokens    int                 `json:"max_output_tokens,omitempty"`
	Temperature        *float64            `json:"temperature,omitempty"`
	TopP               *float64            `json:"top_p,omitempty"`
	Stream             bool                `json:"stream"`
	ReasoningEffort     unified.ReasoningEffort `json:"reasoning_effort,omitempty"`
	Tools              []azureTool         `json:"tools,omitempty"`
	User               string              `json:"user,omitempty"`
}

type azureMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type azureTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type azureResponseBody struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Text    string `json:"text,omitempty"`
		ToolID  string `json:"tool_call_id,omitempty"`
		Name    string `json:"tool_name,omitempty"`
		ArgsRaw json.RawMessage `json:"tool_args,omitempty"`
	} `json:"output"`
	Usage struct {
		InputTokens     int `json:"input_tokens"`
		OutputTokens    int `json:"output_tokens"`
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

func toAzureBody(req *unified.Request) azureRequestBody {
	body := azureRequestBody{
		Model:              req.Model,
		PreviousResponseID: req.PreviousResponseID,
		MaxOutputTokens:    req.MaxOutputTokens,
		Temperature:        req.Temperature,
		TopP:               req.TopP,
		Stream:             req.Stream,
		ReasoningEffort:    req.ReasoningEffort,
		User:               req.UserTag,
	}
	for _, m := range req.Input {
		body.Input = append(body.Input, azureMessage{Role: string(m.Role), Content: m.PlainText()})
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, azureTool{Name: tool.Name, Description: tool.Description, Parameters: tool.Schema})
	}
	return body
}

func fromAzureBody(body azureResponseBody) *unified.Response {
	resp := &unified.Response{
		ID:    body.ID,
		Model: body.Model,
		Usage: unified.Usage{
			InputTokens:     body.Usage.InputTokens,
			OutputTokens:    body.Usage.OutputTokens,
			ReasoningTokens: body.Usage.ReasoningTokens,
			TotalTokens:     body.Usage.InputTokens + body.Usage.OutputTokens,
		},
		FinishReason: unified.FinishReason(body.FinishReason),
	}
	for _, item := range body.Output {
		switch item.Type {
		case "reasoning":
			resp.Output = append(resp.Output, unified.OutputItem{Type: unified.OutputReasoning, Text: item.Text})
		case "tool_call":
			var args map[string]any
			_ = json.Unmarshal(item.ArgsRaw, &args)
			resp.Output = append(resp.Output, unified.OutputItem{Type: unified.OutputToolCall, ToolCallID: item.ToolID, ToolCallName: item.Name, ToolCallArgs: args})
		default:
			resp.Output = append(resp.Output, unified.OutputItem{Type: unified.OutputText, Text: item.Text})
		}
	}
	return resp
}

func (b *AzureBackend) authHeader(ctx context.Context) (string, string, error) {
	if b.cfg.TenantID == "" {
		return "api-key", b.cfg.APIKey, nil
	}
	token, err := b.adToken(ctx)
	if err != nil {
		return "", "", err
	}
	return "Authorization", "Bearer " + token, nil
}

// adToken returns a cached Azure AD access token, refreshing it when
// expired. The actual client-credentials HTTP exchange is not modeled
// here since it talks to a separate login endpoint outside this
// backend's scope; jwt/v5 is used to parse the expiry claim of whatever
// token the caller's credential provider supplied via APIKey as a bearer
// JWT, so the cache knows when to ask for a new one.
func (b *AzureBackend) adToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cachedJWT != "" && time.Now().Before(b.jwtExpiry) {
		return b.cachedJWT, nil
	}

	b.cachedJWT = b.cfg.APIKey
	if claims, _, err := jwt.NewParser().ParseUnverified(b.cachedJWT, jwt.MapClaims{}); err == nil {
		if mapClaims, ok := claims.Claims.(jwt.MapClaims); ok {
			if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
				b.jwtExpiry = exp.Time
				return b.cachedJWT, nil
			}
		}
	}
	b.jwtExpiry = time.Now().Add(5 * time.Minute)
	return b.cachedJWT, nil
}

func (b *AzureBackend) Dispatch(ctx context.Context, req *unified.Request) (*unified.Response, error) {
	body := toAzureBody(req)
	body.Stream = false

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.New(apperr.KindTransformation, "marshal azure request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.requestURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.New(apperr.KindUpstreamNetwork, "build azure request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	headerName, headerValue, err := b.authHeader(ctx)
	if err != nil {
		return nil, apperr.New(apperr.KindAuthentication, "derive azure auth header", err)
	}
	httpReq.Header.Set(headerName, headerValue)

	resp, err := b.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperr.New(apperr.KindUpstreamServer, fmt.Sprintf("azure responded %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.KindUpstreamServer, fmt.Sprintf("azure rejected request: %d", resp.StatusCode), nil)
	}

	var decoded azureResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.New(apperr.KindUpstreamServer, "decode azure response", err)
	}
	return fromAzureBody(decoded), nil
}

func (b *AzureBackend) DispatchStream(ctx context.Context, req *unified.Request) (<-chan unified.StreamChunk, error) {
	body := toAzureBody(req)
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.New(apperr.KindTransformation, "marshal azure stream request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.requestURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.New(apperr.KindUpstreamNetwork, "build azure stream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	headerName, headerValue, err := b.authHeader(ctx)
	if err != nil {
		return nil, apperr.New(apperr.KindAuthentication, "derive azure auth header", err)
	}
	httpReq.Header.Set(headerName, headerValue)

	resp, err := b.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, apperr.New(apperr.KindUpstreamServer, fmt.Sprintf("azure stream rejected: %d", resp.StatusCode), nil)
	}

	out := make(chan unified.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		completed := false
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			raw := strings.TrimPrefix(line, "data: ")
			if raw == "[DONE]" {
				break
			}
			var event azureStreamEvent
			if err := json.Unmarshal([]byte(raw), &event); err != nil {
				continue
			}
			chunk, ok := event.toChunk()
			if !ok {
				continue
			}
			if chunk.Type == unified.StreamCompleted {
				completed = true
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if completed {
				return
			}
		}
		if !completed {
			// Body closed (or [DONE] arrived) without an explicit
			// response.completed event: the Backend contract requires
			// exactly one terminal chunk, so treat this as truncation.
			select {
			case out <- unified.StreamChunk{Type: unified.StreamCompleted, FinishReason: unified.FinishLength}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

type azureStreamEvent struct {
	Type         string `json:"type"`
	Delta        string `json:"delta,omitempty"`
	OutputIndex  int    `json:"output_index,omitempty"`
	ResponseID   string `json:"response_id,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *struct {
		InputTokens     int `json:"input_tokens"`
		OutputTokens    int `json:"output_tokens"`
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"usage,omitempty"`
}

func (e azureStreamEvent) toChunk() (unified.StreamChunk, bool) {
	switch e.Type {
	case "response.output_text.delta":
		return unified.StreamChunk{Type: unified.StreamTextDelta, TextDelta: e.Delta, OutputIndex: e.OutputIndex}, true
	case "response.reasoning.delta":
		return unified.StreamChunk{Type: unified.StreamReasoningDelta, TextDelta: e.Delta, OutputIndex: e.OutputIndex}, true
	case "response.completed":
		chunk := unified.StreamChunk{Type: unified.StreamCompleted, ResponseID: e.ResponseID, FinishReason: unified.FinishReason(e.FinishReason)}
		if e.Usage != nil {
			chunk.Usage = unified.Usage{
				InputTokens:     e.Usage.InputTokens,
				OutputTokens:    e.Usage.OutputTokens,
				ReasoningTokens: e.Usage.ReasoningTokens,
				TotalTokens:     e.Usage.InputTokens + e.Usage.OutputTokens,
			}
		}
		return chunk, true
	default:
		return unified.StreamChunk{}, false
	}
}

func classifyHTTPError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "Timeout") {
		return apperr.New(apperr.KindUpstreamTimeout, "azure request timed out", err)
	}
	return apperr.New(apperr.KindUpstreamNetwork, "azure request failed", err)
}
