package reasoning

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/unified"
)

func userMessage(text string) unified.Message {
	return unified.Message{Role: unified.RoleUser, Blocks: []unified.Block{{Type: unified.BlockText, Text: text}}}
}

func TestAnalyzeHonorsExplicitOverride(t *testing.T) {
	a := New(DefaultThresholds)
	effort := a.Analyze([]unified.Message{userMessage("hi")}, ConversationHints{}, unified.EffortHigh)
	require.Equal(t, unified.EffortHigh, effort)
}

func TestAnalyzeLowForSimpleShortMessage(t *testing.T) {
	a := New(DefaultThresholds)
	effort := a.Analyze([]unified.Message{userMessage("hi there")}, ConversationHints{}, "")
	require.Equal(t, unified.EffortLow, effort)
}

func TestAnalyzeHighForComplexSystemsQuestion(t *testing.T) {
	a := New(DefaultThresholds)
	text := "please prove and optimize this distributed consensus raft kernel implementation, " +
		"explain why it deadlocks and compare it against paxos in rust and c++"
	effort := a.Analyze([]unified.Message{userMessage(text)}, ConversationHints{}, "")
	require.Equal(t, unified.EffortHigh, effort)
}

func TestAnalyzeBumpsOnConversationHints(t *testing.T) {
	a := New(DefaultThresholds)
	base := a.Analyze([]unified.Message{userMessage("hi there")}, ConversationHints{}, "")
	require.Equal(t, unified.EffortLow, base)

	bumped := a.Analyze([]unified.Message{userMessage("hi there")}, ConversationHints{ErrorCount: 1}, "")
	require.Equal(t, base.Bump(), bumped)
}

func TestAnalyzeUsesLastUserMessageOnly(t *testing.T) {
	a := New(DefaultThresholds)
	messages := []unified.Message{
		userMessage("prove optimize debug explain why compare distributed raft paxos kernel assembly"),
		{Role: unified.RoleAssistant, Blocks: []unified.Block{{Type: unified.BlockText, Text: "ok"}}},
		userMessage("hi"),
	}
	effort := a.Analyze(messages, ConversationHints{}, "")
	require.Equal(t, unified.EffortLow, effort)
}

func TestBumpCapsAtHigh(t *testing.T) {
	require.Equal(t, unified.EffortHigh, unified.EffortHigh.Bump())
	require.Equal(t, unified.EffortHigh, unified.EffortMedium.Bump())
	require.Equal(t, unified.EffortMedium, unified.EffortLow.Bump())
	require.Equal(t, unified.EffortLow, unified.EffortNone.Bump())
}
