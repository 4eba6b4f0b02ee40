package monitor

import (
	"runtime"
	"time"
)

// Status is the /health endpoint's coarse verdict (spec §6).
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Thresholds from spec §4.11: >50% error rate or heap usage past 90% is
// unhealthy; heap usage past 80%, any breaker trip or fallback usage since
// the last report degrades the verdict. The worst verdict wins.
const (
	unhealthyErrorRate = 0.50
	unhealthyHeapPct   = 0.90
	degradedHeapPct    = 0.80
)

// EvaluateInput carries the inputs spec §4.11's threshold rules are
// evaluated against.
type EvaluateInput struct {
	ErrorRate       float64
	DegradedRate    float64 // fallback usage since the last report
	AnyBreakerTrips bool
	HeapPercent     float64
}

// Evaluate derives a Status from the rules in spec §4.11: heap exhaustion
// takes priority, then the error-rate cutoff, then any breaker trip or
// fallback usage at all degrades the verdict.
func Evaluate(in EvaluateInput) Status {
	if in.HeapPercent > unhealthyHeapPct || in.ErrorRate > unhealthyErrorRate {
		return StatusUnhealthy
	}
	if in.HeapPercent > degradedHeapPct || in.AnyBreakerTrips || in.DegradedRate > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

// ServiceStatus is one upstream's entry under services in the /health body.
type ServiceStatus struct {
	Status        Status    `json:"status"`
	ResponseTimeMs float64  `json:"responseTime"`
	LastCheck     time.Time `json:"lastCheck"`
}

// RequestCounts is the metrics.requests sub-object spec §6 names.
type RequestCounts struct {
	Total               int     `json:"total"`
	Successful          int     `json:"successful"`
	Failed              int     `json:"failed"`
	AverageResponseTime float64 `json:"averageResponseTime"`
}

// TokenCounts is the metrics.tokens sub-object spec §6 names.
type TokenCounts struct {
	Total     int64 `json:"total"`
	Reasoning int64 `json:"reasoning"`
}

// MemoryStats is the metrics.memory sub-object spec §6 names, sourced
// from runtime.MemStats' heap-in-use figures.
type MemoryStats struct {
	UsedBytes  uint64  `json:"used"`
	TotalBytes uint64  `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ReadMemoryStats samples the current heap usage via runtime.ReadMemStats.
func ReadMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mem := MemoryStats{UsedBytes: m.HeapInuse, TotalBytes: m.HeapSys}
	if m.HeapSys > 0 {
		mem.Percentage = float64(m.HeapInuse) / float64(m.HeapSys)
	}
	return mem
}

// HealthReport is the JSON body /health returns, per spec §6's shape:
// {status, timestamp, uptime, version, environment, services, metrics}.
type HealthReport struct {
	Status      Status                   `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	UptimeSec   float64                  `json:"uptime"`
	Version     string                   `json:"version"`
	Environment string                   `json:"environment"`
	Services    HealthServices           `json:"services"`
	Metrics     HealthMetrics            `json:"metrics"`
}

// HealthServices is the services sub-object spec §6 names.
type HealthServices struct {
	AzureOpenAI     ServiceStatus            `json:"azureOpenAI"`
	CircuitBreakers map[string]string        `json:"circuitBreakers"`
}

// HealthMetrics is the metrics sub-object spec §6 names.
type HealthMetrics struct {
	Requests RequestCounts `json:"requests"`
	Tokens   TokenCounts   `json:"tokens"`
	Memory   MemoryStats   `json:"memory"`
}

// BuildHealthReport assembles the /health body from a Recorder snapshot,
// the breaker states keyed by backend name, and the process' current
// heap usage.
func BuildHealthReport(snap Snapshot, breakerStates map[string]string, tokensTotal, tokensReasoning int64, uptime time.Duration, version, environment string) HealthReport {
	mem := ReadMemoryStats()

	anyTripped := false
	for _, state := range breakerStates {
		if state != "closed" {
			anyTripped = true
			break
		}
	}

	status := Evaluate(EvaluateInput{
		ErrorRate:       snap.ErrorRate,
		DegradedRate:    snap.DegradedRate,
		AnyBreakerTrips: anyTripped,
		HeapPercent:     mem.Percentage,
	})

	azureStatus := StatusHealthy
	if state, ok := breakerStates["azure"]; ok {
		switch state {
		case "open":
			azureStatus = StatusUnhealthy
		case "half_open":
			azureStatus = StatusDegraded
		}
	}

	lastCheck := snap.LastRequestAt
	if lastCheck.IsZero() {
		lastCheck = time.Now()
	}

	return HealthReport{
		Status:      status,
		Timestamp:   time.Now(),
		UptimeSec:   uptime.Seconds(),
		Version:     version,
		Environment: environment,
		Services: HealthServices{
			AzureOpenAI: ServiceStatus{
				Status:         azureStatus,
				ResponseTimeMs: snap.P50Ms,
				LastCheck:      lastCheck,
			},
			CircuitBreakers: breakerStates,
		},
		Metrics: HealthMetrics{
			Requests: RequestCounts{
				Total:               snap.TotalRequests,
				Successful:          snap.SuccessfulCount,
				Failed:              snap.FailedCount,
				AverageResponseTime: snap.P50Ms,
			},
			Tokens: TokenCounts{Total: tokensTotal, Reasoning: tokensReasoning},
			Memory: mem,
		},
	}
}
