// Package httpapi implements the HTTP surface (C12): correlating an
// incoming request, running it through C3...C11, and replying in the
// client's dialect, per spec §4.12. It follows the teacher's router/
// middleware split (gin.Engine built once, routes grouped, concerns
// layered as middleware) rather than a framework-less net/http mux.
package httpapi

import (
	"context"
	"net/http"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/laiskydev/respgate/internal/config"
	"github.com/laiskydev/respgate/internal/conversation"
	"github.com/laiskydev/respgate/internal/credential"
	"github.com/laiskydev/respgate/internal/dispatch"
	"github.com/laiskydev/respgate/internal/monitor"
	"github.com/laiskydev/respgate/internal/reasoning"
	"github.com/laiskydev/respgate/internal/resilience"
)

// Version is the build version reported by /health; cmd/respgate may
// override it with a linker-set value.
var Version = "dev"

// Deps bundles every component cmd/respgate wires together before
// building the HTTP surface.
type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Credential *credential.Store
	Tracker    *conversation.Tracker
	Analyzer   *reasoning.Analyzer
	Router     dispatch.Router
	Breakers   map[string]*resilience.Breaker // keyed by Backend.Name()
	Retry      resilience.RetryPolicy
	Metrics    *monitor.Metrics
	Recorder   *monitor.Recorder
}

// Server owns the gin engine and every component the request pipeline
// dispatches into.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	creds      *credential.Store
	tracker    *conversation.Tracker
	analyzer   *reasoning.Analyzer
	router     dispatch.Router
	breakers   map[string]*resilience.Breaker
	retry      resilience.RetryPolicy
	metrics    *monitor.Metrics
	recorder   *monitor.Recorder
	startedAt  time.Time
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the gin engine and registers every route (spec §4.12, §6).
func New(deps Deps) *Server {
	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		creds:     deps.Credential,
		tracker:   deps.Tracker,
		analyzer:  deps.Analyzer,
		router:    deps.Router,
		breakers:  deps.Breakers,
		retry:     deps.Retry,
		metrics:   deps.Metrics,
		recorder:  deps.Recorder,
		startedAt: time.Now(),
	}

	gin.SetMode(ginMode(deps.Config.Env))
	engine := gin.New()
	engine.Use(otelgin.Middleware("respgate"))
	engine.Use(gmw.NewLoggerMiddleware(gmw.WithLogger(deps.Logger.Named("http"))))
	engine.Use(s.recovery())
	engine.Use(s.correlationID())
	engine.Use(s.securityHeaders())
	engine.Use(s.cors())
	engine.Use(s.gzip())

	s.registerRoutes(engine)
	s.engine = engine
	return s
}

func ginMode(env string) string {
	if env == "production" {
		return gin.ReleaseMode
	}
	if env == "test" {
		return gin.TestMode
	}
	return gin.DebugMode
}

// Handler returns the underlying http.Handler, for tests that drive the
// pipeline with httptest without a listening socket.
func (s *Server) Handler() http.Handler { return s.engine }

// Run starts the HTTP listener and blocks until ctx is canceled, then
// drains in-flight requests before returning (spec §6 exit codes: the
// caller maps a clean shutdown to exit code 0, a listener failure to 2).
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    ":" + itoa(s.cfg.Port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
