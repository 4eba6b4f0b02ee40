package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/config"
	"github.com/laiskydev/respgate/internal/conversation"
	"github.com/laiskydev/respgate/internal/credential"
	"github.com/laiskydev/respgate/internal/dispatch"
	"github.com/laiskydev/respgate/internal/logger"
	"github.com/laiskydev/respgate/internal/monitor"
	"github.com/laiskydev/respgate/internal/reasoning"
	"github.com/laiskydev/respgate/internal/resilience"
	"github.com/laiskydev/respgate/internal/unified"
	"github.com/laiskydev/respgate/internal/wire"
)

var errUpstream = apperr.New(apperr.KindUpstreamServer, "simulated upstream failure", nil)

// fakeBackend is a dispatch.Backend stand-in so these tests never reach
// a real Azure or Bedrock endpoint.
type fakeBackend struct {
	name string
	err  error
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Dispatch(ctx context.Context, req *unified.Request) (*unified.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &unified.Response{
		ID:           "resp-1",
		Model:        req.Model,
		Output:       []unified.OutputItem{{Type: unified.OutputText, Text: "hello back"}},
		Usage:        unified.Usage{InputTokens: 5, OutputTokens: 3},
		FinishReason: unified.FinishStop,
	}, nil
}

func (f *fakeBackend) DispatchStream(ctx context.Context, req *unified.Request) (<-chan unified.StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan unified.StreamChunk, 2)
	ch <- unified.StreamChunk{Type: unified.StreamTextDelta, TextDelta: "hi"}
	ch <- unified.StreamChunk{Type: unified.StreamCompleted, FinishReason: unified.FinishStop, Usage: unified.Usage{InputTokens: 1, OutputTokens: 1}}
	close(ch)
	return ch, nil
}

func testServer(t *testing.T, backend dispatch.Backend) (*Server, string) {
	t.Helper()

	cfg := &config.Config{
		Env:                    "test",
		Port:                   0,
		ProxyAPIKey:            "client-key-7f3a9c2e-local",
		RateLimitRPS:           1000,
		RateLimitBurst:         1000,
		ReasoningThresholdLow:  25,
		ReasoningThresholdHigh: 60,
		ConvTTL:                time.Minute,
		ConvMaxEntries:         100,
		BreakerFailureThreshold: 3,
		BreakerWindow:           time.Minute,
		BreakerCooldown:         time.Second,
		RetryMaxAttempt:         1,
		RequestDeadline:         5 * time.Second,
	}

	lg, err := logger.New(cfg.Env)
	require.NoError(t, err)

	creds, err := credential.New(cfg)
	require.NoError(t, err)

	tracker := conversation.New(cfg)
	t.Cleanup(tracker.Close)

	analyzer := reasoning.New(reasoning.Thresholds{Low: cfg.ReasoningThresholdLow, High: cfg.ReasoningThresholdHigh})
	metrics := monitor.NewMetrics(func() float64 { return float64(tracker.Len()) })
	recorder := monitor.NewRecorder()

	router := dispatch.Router{Primary: backend}
	breakers := map[string]*resilience.Breaker{
		backend.Name(): resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			Window:           cfg.BreakerWindow,
			Cooldown:         cfg.BreakerCooldown,
		}),
	}

	s := New(Deps{
		Config:     cfg,
		Logger:     lg,
		Credential: creds,
		Tracker:    tracker,
		Analyzer:   analyzer,
		Router:     router,
		Breakers:   breakers,
		Retry:      resilience.DefaultRetryPolicy(cfg.RetryMaxAttempt, cfg.RequestDeadline),
		Metrics:    metrics,
		Recorder:   recorder,
	})
	return s, "client-key-7f3a9c2e-local"
}

func claudeBody(stream bool) []byte {
	body := wire.ClaudeRequest{
		Model:     "gpt-5",
		Messages:  []wire.ClaudeMessage{{Role: "user", RawContent: json.RawMessage(`"hello there"`)}},
		MaxTokens: 256,
		Stream:    stream,
	}
	raw, _ := json.Marshal(body)
	return raw
}

func TestHandleCompletionClaudeDialectNonStreaming(t *testing.T) {
	s, key := testServer(t, &fakeBackend{name: "azure"})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(claudeBody(false)))
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp wire.ClaudeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "hello back", resp.Content[0].Text)
}

func TestHandleCompletionRejectsMissingCredential(t *testing.T) {
	s, _ := testServer(t, &fakeBackend{name: "azure"})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(claudeBody(false)))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCompletionSharedRouteAcceptsEitherDialect(t *testing.T) {
	s, key := testServer(t, &fakeBackend{name: "azure"})

	openAIBody, _ := json.Marshal(map[string]any{
		"model":               "gpt-5",
		"messages":            []map[string]string{{"role": "user", "content": "hello"}},
		"max_completion_tokens": 128,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(openAIBody))
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "chat.completion", resp["object"])
}

func TestHandleCompletionDegradesWithStaticMessageForNonServiceUnavailableClass(t *testing.T) {
	rateLimited := apperr.New(apperr.KindRateLimit, "simulated rate limit", nil)
	s, key := testServer(t, &fakeBackend{name: "azure", err: rateLimited})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(claudeBody(false)))
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp wire.ClaudeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Content[0].Text, "temporarily unavailable")
}

func TestHandleCompletionServiceUnavailableClassReturnsErrorEnvelope(t *testing.T) {
	s, key := testServer(t, &fakeBackend{name: "azure", err: errUpstream})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(claudeBody(false)))
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var envelope wire.ClaudeErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "error", envelope.Type)
	require.Equal(t, string(apperr.KindUpstreamServer), envelope.Error.Type)
}

func TestHandleCompletionCircuitOpenReturnsErrorEnvelope(t *testing.T) {
	s, key := testServer(t, &fakeBackend{name: "azure", err: errUpstream})

	// Trip the breaker (BreakerFailureThreshold is 3 in testServer).
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(claudeBody(false)))
		req.Header.Set("Authorization", "Bearer "+key)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadGateway, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(claudeBody(false)))
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var envelope wire.ClaudeErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, string(apperr.KindCircuitOpen), envelope.Error.Type)
}

func TestHandleHealthReportsStatus(t *testing.T) {
	s, _ := testServer(t, &fakeBackend{name: "azure"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
