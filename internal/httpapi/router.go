package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laiskydev/respgate/internal/monitor"
)

// registerRoutes wires every route named in spec §6/§4.12. Both
// completion routes share one handler: "Either path accepts either
// dialect; the detector decides. The path is not authoritative."
func (s *Server) registerRoutes(engine *gin.Engine) {
	protected := engine.Group("/v1")
	protected.Use(s.auth(), s.rateLimit())
	protected.POST("/messages", s.handleCompletion)
	protected.POST("/chat/completions", s.handleCompletion)

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.recorder.Snapshot()

	breakerStates := make(map[string]string, len(s.breakers))
	for name, breaker := range s.breakers {
		breakerStates[name] = breaker.State().String()
	}

	tokensTotal, tokensReasoning := s.metrics.TokenTotals()

	report := monitor.BuildHealthReport(snap, breakerStates, tokensTotal, tokensReasoning,
		time.Since(s.startedAt), Version, s.cfg.Env)

	status := http.StatusOK
	if report.Status == monitor.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
