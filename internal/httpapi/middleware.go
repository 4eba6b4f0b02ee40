package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/ctxkey"
	"github.com/laiskydev/respgate/internal/dialect"
	"github.com/laiskydev/respgate/internal/monitor"
	"github.com/laiskydev/respgate/internal/respond"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerAuthorization = "Authorization"
	headerAPIKey        = "x-api-key"
)

// AbortWithError writes the dialect-correct error envelope for err and
// aborts the gin chain, following the teacher's AbortWithError convention
// (middleware/utils.go): a single function every stage calls instead of
// building gin.H{"error": ...} inline.
func AbortWithError(c *gin.Context, err *apperr.Error) {
	body, _ := c.Get(ctxkey.RequestBody)
	var d dialect.Dialect = dialect.Claude
	if raw, ok := body.([]byte); ok {
		d = respond.DetectedDialect(raw, c.GetHeader("anthropic-version"))
	}
	if existing, ok := c.Get(ctxkey.Dialect); ok {
		d, _ = existing.(dialect.Dialect)
	}
	c.JSON(err.HTTPStatus(), respond.ErrorEnvelope(d, err))
	c.Abort()
}

// correlationID echoes X-Correlation-Id if present, otherwise assigns a
// fresh uuid, and stores it for every downstream stage (spec §4.12).
func (s *Server) correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxkey.CorrelationID, id)
		c.Header(headerCorrelationID, id)
		c.Next()
	}
}

// securityHeaders sets the static header set from spec §4.12. This
// gateway only ever serves JSON or event-stream bodies, so no
// Content-Security-Policy is needed — there is no HTML surface for it to
// constrain.
func (s *Server) securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		c.Next()
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "x-api-key", "Content-Type", headerCorrelationID, "X-Conversation-Id"},
		ExposeHeaders:   []string{headerCorrelationID},
	})
}

func (s *Server) gzip() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression)
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Sugar().Errorw("panic recovered in request pipeline", "panic", r)
				AbortWithError(c, apperr.New(apperr.KindTransformation, "internal error", nil))
			}
		}()
		c.Next()
	}
}

// auth validates the client's Bearer or x-api-key header against the
// credential store. It must run after correlationID (so a rejected
// request still carries the header) and before any dialect detection or
// validation (spec §4.12, §6).
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearerKey(c.GetHeader(headerAuthorization))
		if key == "" {
			key = c.GetHeader(headerAPIKey)
		}
		if key == "" || !s.creds.Validate(key) {
			s.recorder.RecordSecurityEvent(monitor.SecurityEvent{Reason: "missing_or_invalid_credential"})
			AbortWithError(c, apperr.New(apperr.KindAuthentication, "invalid or missing API key", nil))
			return
		}
		c.Set(ctxkey.ClientKey, key)
		c.Next()
	}
}

func bearerKey(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// rateLimit applies a per-client-key token bucket (spec §4.12, §6); a
// client with no validated key yet (shouldn't happen after auth runs
// first) falls back to a shared bucket keyed by IP.
type rateLimiter struct {
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{buckets: make(map[string]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	if lim, ok := rl.buckets[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = lim
	return lim
}

func (s *Server) rateLimit() gin.HandlerFunc {
	limiter := newRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst)
	return func(c *gin.Context) {
		key, _ := c.Get(ctxkey.ClientKey)
		id, _ := key.(string)
		if id == "" {
			id = c.ClientIP()
		}
		if !limiter.get(id).Allow() {
			AbortWithError(c, apperr.New(apperr.KindRateLimit, "rate limit exceeded", nil))
			return
		}
		c.Next()
	}
}

