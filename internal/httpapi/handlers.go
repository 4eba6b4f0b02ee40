package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/conversation"
	"github.com/laiskydev/respgate/internal/ctxkey"
	"github.com/laiskydev/respgate/internal/dialect"
	"github.com/laiskydev/respgate/internal/monitor"
	"github.com/laiskydev/respgate/internal/reasoning"
	"github.com/laiskydev/respgate/internal/resilience"
	"github.com/laiskydev/respgate/internal/respond"
	"github.com/laiskydev/respgate/internal/transform"
	"github.com/laiskydev/respgate/internal/unified"
	"github.com/laiskydev/respgate/internal/validate"
	"github.com/laiskydev/respgate/internal/wire"
)

// pipeline carries the state built up as one request moves through
// C1...C9 before dispatch, so both the streaming and non-streaming
// branches of handleCompletion can share the setup.
type pipeline struct {
	dialect        dialect.Dialect
	result         *validate.Result
	conversationID string
	correlationID  string
	clientKey      string
	req            *unified.Request
	startedAt      time.Time
}

// handleCompletion serves both POST /v1/messages and POST
// /v1/chat/completions. The route is not authoritative: dialect.Detect
// decides the wire shape from the body itself.
func (s *Server) handleCompletion(c *gin.Context) {
	p, appErr := s.buildPipeline(c)
	if appErr != nil {
		s.recordError(c, p, appErr)
		AbortWithError(c, appErr)
		return
	}

	if p.result.Stream {
		s.dispatchStream(c, p)
		return
	}
	s.dispatchOnce(c, p)
}

func (s *Server) buildPipeline(c *gin.Context) (*pipeline, *apperr.Error) {
	body, err := wire.ReadBody(c.Request.Body)
	if err != nil {
		return nil, asAppErr(err)
	}
	c.Set(ctxkey.RequestBody, body)

	d := dialect.Detect(body, c.GetHeader("anthropic-version"))
	c.Set(ctxkey.Dialect, d)

	var result *validate.Result
	switch d {
	case dialect.OpenAI:
		req, err := wire.DecodeOpenAIRequest(body)
		if err != nil {
			return nil, asAppErr(err)
		}
		result, err = validate.ValidateOpenAI(req)
		if err != nil {
			return nil, asAppErr(err)
		}
	default:
		req, err := wire.DecodeClaudeRequest(body)
		if err != nil {
			return nil, asAppErr(err)
		}
		result, err = validate.ValidateClaude(req)
		if err != nil {
			return nil, asAppErr(err)
		}
	}

	correlationID, _ := c.Get(ctxkey.CorrelationID)
	clientKey, _ := c.Get(ctxkey.ClientKey)

	firstUser := firstUserMessage(result.Messages)
	convID := conversation.DeriveID(c.GetHeader("X-Conversation-Id"), "", c.ClientIP(), firstUser)
	c.Set(ctxkey.ConversationID, convID)

	previousResponseID, hints := s.tracker.BeginTurn(convID)

	override := unified.ReasoningEffort(c.GetHeader("X-Reasoning-Effort"))
	if hint, ok := c.Get(ctxkey.ReasoningHint); ok {
		if hintStr, ok := hint.(string); ok && hintStr != "" {
			override = unified.ReasoningEffort(hintStr)
		}
	}
	effort := s.analyzer.Analyze(result.Messages, reasoning.ConversationHints{
		ErrorCount:                  hints.ErrorCount,
		PreviousRequestedMoreTokens: hints.PreviousRequestedMoreTokens,
	}, override)

	unifiedReq, err := transform.Build(transform.Input{
		Result:             result,
		Effort:             effort,
		PreviousResponseID: previousResponseID,
		ConversationID:     convID,
		CorrelationID:      correlationID.(string),
		ClientIdentityTag:  clientKeyTag(clientKey),
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	return &pipeline{
		dialect:        d,
		result:         result,
		conversationID: convID,
		correlationID:  correlationID.(string),
		clientKey:      clientKeyTag(clientKey),
		req:            unifiedReq,
		startedAt:      time.Now(),
	}, nil
}

func firstUserMessage(messages []unified.Message) string {
	for _, m := range messages {
		if m.Role == unified.RoleUser {
			return m.PlainText()
		}
	}
	return ""
}

func clientKeyTag(v any) string {
	s, _ := v.(string)
	return s
}

func asAppErr(err error) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	return apperr.New(apperr.KindTransformation, "internal error", err)
}

// backend picks the dispatch target and its breaker. Bedrock only serves
// as an explicit secondary; the resilience kernel governs failover via
// the primary's own breaker state, not automatic backend substitution
// (spec §1, §4.9).
func (s *Server) backendAndBreaker() (name string, breaker *resilience.Breaker) {
	b := s.router.Select(false)
	return b.Name(), s.breakers[b.Name()]
}

// serviceUnavailableClass reports whether kind belongs to the
// service-unavailable bucket spec §4.8 routes to a dialect-correct error
// envelope rather than a static assistant message: the breaker is open,
// or every retry was exhausted against a timeout/network/5xx upstream
// failure. Every other retryable-but-exhausted kind (e.g. a sustained
// rate limit) still gets the static degraded message.
func serviceUnavailableClass(kind apperr.Kind) bool {
	switch kind {
	case apperr.KindCircuitOpen, apperr.KindUpstreamTimeout, apperr.KindUpstreamNetwork, apperr.KindUpstreamServer:
		return true
	default:
		return false
	}
}

func (s *Server) dispatchOnce(c *gin.Context, p *pipeline) {
	backendName, breaker := s.backendAndBreaker()

	resp, failure := s.runWithResilience(c, backendName, breaker, func(ctx *gin.Context, attempt int) (*unified.Response, error) {
		return s.router.Select(false).Dispatch(ctx.Request.Context(), p.req)
	})

	elapsed := time.Since(p.startedAt)

	if failure != nil && serviceUnavailableClass(failure.Kind) {
		s.completeTurn(p, nil, elapsed, false)
		s.recordError(c, p, failure)
		AbortWithError(c, failure)
		return
	}

	degraded := failure != nil
	if degraded {
		resp = resilience.Degrade(p.req.Model)
	}
	s.completeTurn(p, resp, elapsed, true)
	s.recordSuccess(p, elapsed, degraded)
	s.metrics.RecordTokens(resp.Usage)

	switch p.dialect {
	case dialect.OpenAI:
		c.JSON(200, respond.ToOpenAI(resp, time.Now().Unix(), s.cfg.IncludeReasoningTokens))
	default:
		c.JSON(200, respond.ToClaude(resp, s.cfg.IncludeReasoningTokens))
	}
}

func (s *Server) dispatchStream(c *gin.Context, p *pipeline) {
	backendName, breaker := s.backendAndBreaker()

	allowed, isProbe := breaker.Allow()
	if !allowed {
		failure := &apperr.Error{Kind: apperr.KindCircuitOpen, Message: "upstream temporarily overloaded"}
		s.completeTurn(p, nil, time.Since(p.startedAt), false)
		s.recordError(c, p, failure)
		AbortWithError(c, failure)
		return
	}

	chunks, err := s.router.Select(false).DispatchStream(c.Request.Context(), p.req)
	breaker.Report(isProbe, err)
	if err != nil {
		if breaker.State() == resilience.StateOpen {
			s.metrics.RecordBreakerTrip(backendName)
		}
		failure := asAppErr(err)
		if serviceUnavailableClass(failure.Kind) {
			s.completeTurn(p, nil, time.Since(p.startedAt), false)
			s.recordError(c, p, failure)
			AbortWithError(c, failure)
			return
		}
		s.recordError(c, p, failure)
		s.writeDegradedStream(c, p)
		return
	}

	sw, err := wire.NewSSEWriter(c.Writer)
	if err != nil {
		s.recordError(c, p, asAppErr(err))
		AbortWithError(c, asAppErr(err))
		return
	}

	var streamErr error
	switch p.dialect {
	case dialect.OpenAI:
		streamErr = respond.StreamToOpenAI(sw, p.conversationID, p.req.Model, time.Now().Unix(), chunks, s.cfg.IncludeReasoningTokens)
	default:
		streamErr = respond.StreamToClaude(sw, p.req.Model, chunks, s.cfg.IncludeReasoningTokens)
	}

	elapsed := time.Since(p.startedAt)
	s.completeTurn(p, nil, elapsed, streamErr == nil)
	if streamErr != nil {
		s.recordError(c, p, asAppErr(streamErr))
		return
	}
	s.recordSuccess(p, elapsed, false)
}

func (s *Server) writeDegradedStream(c *gin.Context, p *pipeline) {
	resp := resilience.Degrade(p.req.Model)
	elapsed := time.Since(p.startedAt)
	s.completeTurn(p, resp, elapsed, true)
	s.recordSuccess(p, elapsed, true)

	switch p.dialect {
	case dialect.OpenAI:
		c.JSON(200, respond.ToOpenAI(resp, time.Now().Unix(), s.cfg.IncludeReasoningTokens))
	default:
		c.JSON(200, respond.ToClaude(resp, s.cfg.IncludeReasoningTokens))
	}
}

// runWithResilience wraps fn with the breaker/retry policy from spec
// §4.8. On success it returns the response with a nil failure; otherwise
// it returns the classified failure and leaves the caller to pick
// between the error-envelope and static-message fallback
// (serviceUnavailableClass).
func (s *Server) runWithResilience(c *gin.Context, backendName string, breaker *resilience.Breaker, fn func(*gin.Context, int) (*unified.Response, error)) (resp *unified.Response, failure *apperr.Error) {
	allowed, isProbe := breaker.Allow()
	if !allowed {
		return nil, &apperr.Error{Kind: apperr.KindCircuitOpen, Message: "upstream temporarily overloaded"}
	}

	var attempted *unified.Response
	retryErr := resilience.Do(c.Request.Context(), s.retry, resilience.DefaultClassifier, nil, func(ctx context.Context, attempt int) error {
		var attemptErr error
		attempted, attemptErr = fn(c, attempt)
		return attemptErr
	})
	breaker.Report(isProbe, retryErr)
	if retryErr != nil {
		if breaker.State() == resilience.StateOpen {
			s.metrics.RecordBreakerTrip(backendName)
		}
		return nil, asAppErr(retryErr)
	}
	return attempted, nil
}

func (s *Server) completeTurn(p *pipeline, resp *unified.Response, elapsed time.Duration, success bool) {
	update := conversation.TurnUpdate{Elapsed: elapsed, Success: success}
	if resp != nil {
		update.ResponseID = resp.ID
		update.InputTokens = int64(resp.Usage.InputTokens)
		update.OutputTokens = int64(resp.Usage.OutputTokens)
	}
	if p.req != nil {
		update.MaxTokensRequested = int64(p.req.MaxOutputTokens)
	}
	s.tracker.CompleteTurn(p.conversationID, update)
}

func (s *Server) recordSuccess(p *pipeline, elapsed time.Duration, degraded bool) {
	effort := unified.EffortNone
	if p.req != nil {
		effort = p.req.ReasoningEffort
	}
	s.metrics.RecordRequest(p.dialect, effort, elapsed.Seconds(), degraded)
	s.recorder.RecordRequest(monitor.RequestMetric{
		Dialect:    p.dialect,
		DurationMs: float64(elapsed.Milliseconds()),
		Degraded:   degraded,
	})
}

func (s *Server) recordError(c *gin.Context, p *pipeline, appErr *apperr.Error) {
	s.metrics.RecordError(appErr.Kind)
	d := dialect.Claude
	if p != nil {
		d = p.dialect
	}
	elapsed := time.Duration(0)
	if p != nil {
		elapsed = time.Since(p.startedAt)
	}
	s.recorder.RecordRequest(monitor.RequestMetric{
		Dialect:    d,
		DurationMs: float64(elapsed.Milliseconds()),
		Errored:    true,
	})
	if appErr.Kind == apperr.KindSecurity {
		s.recorder.RecordSecurityEvent(monitor.SecurityEvent{Reason: appErr.Message})
	}
}
