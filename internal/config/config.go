// Package config loads process configuration from the environment, the
// way the teacher's cmd entrypoint loads a .env file with godotenv before
// falling back to process environment variables and typed defaults.
package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/joho/godotenv"
)

// Config holds every tunable named in spec §6 plus the SPEC_FULL.md
// expansion table. Fields are grouped by the component that owns them.
type Config struct {
	Port        int
	Env         string // development | production | test
	ProxyAPIKey string

	AzureOpenAIEndpoint   string
	AzureOpenAIAPIKey     string
	AzureOpenAIModel      string
	AzureOpenAIAPIVersion string

	AzureADTenantID     string
	AzureADClientID     string
	AzureADClientSecret string

	AWSBedrockRegion    string
	AWSBedrockModelID   string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string

	RequestDeadline time.Duration
	RetryMaxAttempt int

	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	BreakerWindow           time.Duration

	ConvTTL        time.Duration
	ConvMaxEntries int
	ConvRedisAddr  string

	MetricsReportInterval time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	ReasoningThresholdLow  int
	ReasoningThresholdHigh int
	IncludeReasoningTokens bool

	OTELExporterEndpoint string
}

// Load reads configuration from the process environment, optionally
// seeded by a .env file if present. Missing required values fail with a
// wrapped error the caller should treat as an initialization failure
// (exit code 1, per spec §6).
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := &Config{
		Port:                    envInt("PORT", 3000),
		Env:                     envString("NODE_ENV", "development"),
		ProxyAPIKey:             os.Getenv("PROXY_API_KEY"),
		AzureOpenAIEndpoint:     os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIAPIKey:       os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureOpenAIModel:        os.Getenv("AZURE_OPENAI_MODEL"),
		AzureOpenAIAPIVersion:   envString("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		AzureADTenantID:         os.Getenv("AZURE_AD_TENANT_ID"),
		AzureADClientID:         os.Getenv("AZURE_AD_CLIENT_ID"),
		AzureADClientSecret:     os.Getenv("AZURE_AD_CLIENT_SECRET"),
		AWSBedrockRegion:        os.Getenv("AWS_BEDROCK_REGION"),
		AWSBedrockModelID:       os.Getenv("AWS_BEDROCK_MODEL_ID"),
		AWSAccessKeyID:          os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:      os.Getenv("AWS_SECRET_ACCESS_KEY"),
		RequestDeadline:         envMillis("REQUEST_DEADLINE_MS", 120_000),
		RetryMaxAttempt:         envInt("RETRY_MAX_ATTEMPTS", 3),
		BreakerFailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCooldown:         envMillis("BREAKER_COOLDOWN_MS", 30_000),
		BreakerWindow:           envMillis("BREAKER_WINDOW_MS", 60_000),
		ConvTTL:                 envMillis("CONV_TTL_MS", 1_800_000),
		ConvMaxEntries:          envInt("CONV_MAX_ENTRIES", 10_000),
		ConvRedisAddr:           os.Getenv("CONV_REDIS_ADDR"),
		MetricsReportInterval:   envMillis("METRICS_REPORT_MS", 60_000),
		RateLimitRPS:            envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:          envInt("RATE_LIMIT_BURST", 40),
		ReasoningThresholdLow:   envInt("REASONING_THRESHOLD_LOW", 25),
		ReasoningThresholdHigh:  envInt("REASONING_THRESHOLD_HIGH", 60),
		IncludeReasoningTokens:  envBool("INCLUDE_REASONING_IN_OUTPUT_TOKENS", false),
		OTELExporterEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.Env != "test" {
		if cfg.ProxyAPIKey == "" {
			return nil, errors.New("PROXY_API_KEY is required")
		}
		if err := checkPlaceholder("PROXY_API_KEY", cfg.ProxyAPIKey); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// CheckPlaceholder is the exported form of checkPlaceholder, reused by
// the credential store (internal/credential) to apply the same
// placeholder/entropy rejection rule to each configured client key.
func CheckPlaceholder(name, value string) error {
	return checkPlaceholder(name, value)
}

// checkPlaceholder rejects configured credentials that look like sample
// values left over from documentation, per spec §4.2.
func checkPlaceholder(name, value string) error {
	lower := strings.ToLower(value)
	for _, bad := range []string{"test", "example", "your-key"} {
		if strings.HasPrefix(lower, bad) {
			return errors.Errorf("%s looks like a placeholder value", name)
		}
	}
	if len(value) >= 16 && entropyScore(value) < 3 {
		return errors.Errorf("%s has insufficient entropy for a production credential", name)
	}
	return nil
}

// entropyScore is a coarse Shannon-entropy-per-character estimate used
// only to reject obviously-low-entropy placeholder strings; it is not a
// cryptographic strength measure.
func entropyScore(s string) float64 {
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	n := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envMillis(key string, defMS int64) time.Duration {
	ms := int64(envInt(key, int(defMS)))
	return time.Duration(ms) * time.Millisecond
}
