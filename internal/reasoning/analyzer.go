// Package reasoning implements the reasoning analyzer (C5): a
// deterministic function over the normalized message list that picks a
// low/medium/high/none effort bucket, per spec §4.5.
package reasoning

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/patrickmn/go-cache"

	"github.com/laiskydev/respgate/internal/unified"
)

// Thresholds holds S1/S2 from spec §4.5, configurable per deployment.
type Thresholds struct {
	Low  int // S1: below this score, effort is low
	High int // S2: at or above this score, effort is high
}

// DefaultThresholds matches the canonical defaults in spec §4.5.
var DefaultThresholds = Thresholds{Low: 25, High: 60}

// complexityIndicators are phrases that raise the complexity score when
// present in the last user message (spec §4.5).
var complexityIndicators = []string{
	"prove", "optimize", "debug", "explain why", "compare",
}

// highComplexityLanguages biases effort upward: systems/kernel code and
// distributed-systems jargon (spec §4.5).
var highComplexityLanguages = map[string]int{
	"rust": 15, "c": 15, "c++": 15, "kernel": 20, "assembly": 20,
	"distributed": 15, "consensus": 15, "raft": 15, "paxos": 15,
	"go": 5, "python": 0, "javascript": 0,
}

// Analyzer scores conversations and picks an effort bucket. It memoizes
// scores for a short TTL since retried requests (§4.8) would otherwise
// redo identical scoring work.
type Analyzer struct {
	thresholds Thresholds
	cache      *cache.Cache
}

// New builds an Analyzer with the given thresholds.
func New(thresholds Thresholds) *Analyzer {
	return &Analyzer{
		thresholds: thresholds,
		cache:      cache.New(30*time.Second, time.Minute),
	}
}

// ConversationHints carries the conversation-tracker state that can bump
// effort by one level (spec §4.5: prior errors or under-delivered tokens).
type ConversationHints struct {
	ErrorCount                  int
	PreviousRequestedMoreTokens bool
}

// Analyze returns the effort bucket for messages, honoring an explicit
// client override if nonempty.
func (a *Analyzer) Analyze(messages []unified.Message, hints ConversationHints, override unified.ReasoningEffort) unified.ReasoningEffort {
	if override != "" {
		return override
	}

	score := a.score(messages)
	effort := a.bucket(score)

	if hints.ErrorCount > 0 || hints.PreviousRequestedMoreTokens {
		effort = effort.Bump()
	}
	return effort
}

func (a *Analyzer) bucket(score int) unified.ReasoningEffort {
	switch {
	case score < a.thresholds.Low:
		return unified.EffortLow
	case score < a.thresholds.High:
		return unified.EffortMedium
	default:
		return unified.EffortHigh
	}
}

func (a *Analyzer) score(messages []unified.Message) int {
	lastUser := lastUserText(messages)
	key := cacheKey(lastUser, len(messages))
	if cached, ok := a.cache.Get(key); ok {
		return cached.(int)
	}

	score := 0
	score += languageBias(lastUser)
	score += complexityScore(lastUser)
	score += tokenEstimateScore(lastUser)
	score += turnCountScore(len(messages))

	a.cache.Set(key, score, cache.DefaultExpiration)
	return score
}

func cacheKey(text string, turns int) string {
	h := xxhash.Sum64String(text)
	return fmt.Sprintf("%d-%x", turns, h)
}

func lastUserText(messages []unified.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == unified.RoleUser {
			return messages[i].PlainText()
		}
	}
	return ""
}

func languageBias(text string) int {
	lower := strings.ToLower(text)
	bias := 0
	for lang, weight := range highComplexityLanguages {
		if strings.Contains(lower, lang) {
			bias += weight
		}
	}
	return bias
}

func complexityScore(text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, indicator := range complexityIndicators {
		if strings.Contains(lower, indicator) {
			score += 8
		}
	}
	if strings.Count(text, "```") >= 4 {
		score += 10 // nested/multiple code blocks
	}
	if multiStepEnumeration(text) {
		score += 10
	}
	return score
}

// multiStepEnumeration detects numbered or bulleted task lists.
func multiStepEnumeration(text string) bool {
	lines := strings.Split(text, "\n")
	count := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			count++
			continue
		}
		if len(trimmed) > 2 && trimmed[0] >= '1' && trimmed[0] <= '9' && (trimmed[1] == '.' || trimmed[1] == ')') {
			count++
		}
	}
	return count >= 3
}

func tokenEstimateScore(text string) int {
	estimate := estimateTokens(text)
	switch {
	case estimate > 2000:
		return 20
	case estimate > 500:
		return 10
	default:
		return 0
	}
}

// estimateTokens is a coarse 4-chars-per-token heuristic; the precise
// count used for billing/usage lives in the tiktoken-backed estimator
// (see internal/reasoning/tokens.go) — this one only needs to be cheap
// and monotonic for bucketing purposes.
func estimateTokens(text string) int {
	return len(text) / 4
}

func turnCountScore(turns int) int {
	switch {
	case turns > 20:
		return 10
	case turns > 8:
		return 5
	default:
		return 0
	}
}
