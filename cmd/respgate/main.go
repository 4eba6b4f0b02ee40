// Command respgate runs the format-translating LLM gateway: it accepts
// Claude- or OpenAI-dialect chat requests, dispatches them against Azure
// OpenAI (primary) or AWS Bedrock (secondary), and translates the reply
// back into whichever dialect the client used.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/laiskydev/respgate/internal/config"
	"github.com/laiskydev/respgate/internal/conversation"
	"github.com/laiskydev/respgate/internal/credential"
	"github.com/laiskydev/respgate/internal/dispatch"
	"github.com/laiskydev/respgate/internal/httpapi"
	"github.com/laiskydev/respgate/internal/logger"
	"github.com/laiskydev/respgate/internal/monitor"
	"github.com/laiskydev/respgate/internal/reasoning"
	"github.com/laiskydev/respgate/internal/resilience"
)

// buildVersion is overridden at link time (-ldflags "-X main.buildVersion=...").
var buildVersion = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	lg, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := monitor.InitTracing(ctx, cfg.OTELExporterEndpoint, buildVersion)
	if err != nil {
		lg.Sugar().Errorw("init tracing", "error", err)
		return 1
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck

	creds, err := credential.New(cfg)
	if err != nil {
		lg.Sugar().Errorw("init credential store", "error", err)
		return 1
	}

	router, err := buildRouter(ctx, cfg, creds)
	if err != nil {
		lg.Sugar().Errorw("init dispatch router", "error", err)
		return 1
	}

	tracker := conversation.New(cfg)
	defer tracker.Close()

	analyzer := reasoning.New(reasoning.Thresholds{
		Low:  cfg.ReasoningThresholdLow,
		High: cfg.ReasoningThresholdHigh,
	})

	metrics := monitor.NewMetrics(func() float64 { return float64(tracker.Len()) })
	recorder := monitor.NewRecorder()

	breakers := map[string]*resilience.Breaker{
		router.Primary.Name(): resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			Window:           cfg.BreakerWindow,
			Cooldown:         cfg.BreakerCooldown,
		}),
	}
	if router.Secondary != nil {
		breakers[router.Secondary.Name()] = resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			Window:           cfg.BreakerWindow,
			Cooldown:         cfg.BreakerCooldown,
		})
	}

	httpapi.Version = buildVersion
	server := httpapi.New(httpapi.Deps{
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

	lg.Sugar().Infow("starting respgate", "port", cfg.Port, "env", cfg.Env)
	if err := server.Run(ctx); err != nil && err != http.ErrServerClosed {
		lg.Sugar().Errorw("server exited", "error", err)
		return 2
	}
	return 0
}

// buildRouter constructs the Azure primary and, when AWS_BEDROCK_REGION
// is configured, the Bedrock secondary backend (spec §1, §6).
func buildRouter(ctx context.Context, cfg *config.Config, creds *credential.Store) (dispatch.Router, error) {
	handle := creds.UpstreamHandle()
	azure := dispatch.NewAzureBackend(dispatch.AzureConfig{
		Endpoint:     cfg.AzureOpenAIEndpoint,
		Deployment:   cfg.AzureOpenAIModel,
		APIVersion:   cfg.AzureOpenAIAPIVersion,
		APIKey:       handle.AzureAPIKey,
		TenantID:     handle.AzureADTenantID,
		ClientID:     handle.AzureADClientID,
		ClientSecret: handle.AzureADClientSecret,
	})

	router := dispatch.Router{Primary: azure}
	if cfg.AWSBedrockRegion == "" {
		return router, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSBedrockRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return router, err
	}
	client := bedrockruntime.NewFromConfig(awsCfg)
	router.Secondary = dispatch.NewBedrockBackend(client, cfg.AWSBedrockModelID)
	return router, nil
}
