// Package conversation implements the conversation tracker (C7): id
// derivation and the ConversationContext map, per spec §4.7 and §9.
package conversation

import "time"

// Context is the per-conversation state the tracker exclusively owns
// (spec §3). No component other than the tracker mutates it directly.
type Context struct {
	ConversationID    string
	LastResponseID    string
	TotalInputTokens  int64
	TotalOutputTokens int64
	AvgResponseTimeMs float64
	ErrorCount        int
	LastSeen          time.Time
	Backend           string // "memory" | "redis", for /health diagnostics only

	// LastMaxTokensRequested and LastOutputTokensReturned feed the
	// reasoning analyzer's "previous turn wanted more tokens than it got"
	// escalation signal (spec §4.5).
	LastMaxTokensRequested   int64
	LastOutputTokensReturned int64
}

// emaAlpha is the smoothing factor for the response-time exponential
// moving average.
const emaAlpha = 0.2

func (c *Context) recordSuccess(responseID string, inputTokens, outputTokens int64, elapsed time.Duration, now time.Time) {
	c.LastResponseID = responseID
	c.TotalInputTokens += inputTokens
	c.TotalOutputTokens += outputTokens
	ms := float64(elapsed.Milliseconds())
	if c.AvgResponseTimeMs == 0 {
		c.AvgResponseTimeMs = ms
	} else {
		c.AvgResponseTimeMs = emaAlpha*ms + (1-emaAlpha)*c.AvgResponseTimeMs
	}
	c.LastSeen = now
}

func (c *Context) recordError(now time.Time) {
	c.ErrorCount++
	c.LastSeen = now
}
