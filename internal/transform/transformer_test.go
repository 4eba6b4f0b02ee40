package transform

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/unified"
	"github.com/laiskydev/respgate/internal/validate"
)

// ignoreCorrelationID lets cases that don't pin a CorrelationID assert on
// everything else; Build mints a fresh uuid whenever the caller doesn't
// supply one, so the literal can't predict it.
var ignoreCorrelationID = cmpopts.IgnoreFields(unified.Request{}, "CorrelationID")

func TestBuildMergesSystemMessageAheadOfConversation(t *testing.T) {
	result := &validate.Result{
		Model:  "gpt-5",
		System: "be terse",
		Messages: []unified.Message{
			{Role: unified.RoleUser, Blocks: []unified.Block{{Type: unified.BlockText, Text: "hi"}}},
		},
		MaxOutputTokens: 256,
		Stream:          false,
	}

	got, err := Build(Input{
		Result:             result,
		Effort:             unified.EffortLow,
		ConversationID:     "conv-1",
		CorrelationID:      "corr-1",
		ClientIdentityTag:  "client-tag",
		PreviousResponseID: "resp-0",
	})
	require.NoError(t, err)

	want := &unified.Request{
		Model: "gpt-5",
		Input: []unified.Message{
			{Role: unified.RoleSystem, Blocks: []unified.Block{{Type: unified.BlockText, Text: "be terse"}}},
			{Role: unified.RoleUser, Blocks: []unified.Block{{Type: unified.BlockText, Text: "hi"}}},
		},
		ReasoningEffort:    unified.EffortLow,
		PreviousResponseID: "resp-0",
		ConversationID:     "conv-1",
		MaxOutputTokens:    256,
		CorrelationID:      "corr-1",
		UserTag:            "client-tag",
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unified request mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildLeavesMessagesUntouchedWithoutSystemString(t *testing.T) {
	result := &validate.Result{
		Model: "claude-opus",
		Messages: []unified.Message{
			{Role: unified.RoleUser, Blocks: []unified.Block{{Type: unified.BlockText, Text: "no system here"}}},
		},
	}

	got, err := Build(Input{Result: result, Effort: unified.EffortNone})
	require.NoError(t, err)

	want := &unified.Request{
		Model:           "claude-opus",
		Input:           result.Messages,
		ReasoningEffort: unified.EffortNone,
	}

	if diff := cmp.Diff(want, got, ignoreCorrelationID); diff != "" {
		t.Fatalf("unified request mismatch (-want +got):\n%s", diff)
	}
	require.NotEmpty(t, got.CorrelationID, "Build mints a correlation id when the caller supplies none")
}

func TestBuildRejectsOversizedRequest(t *testing.T) {
	hugeText := make([]byte, maxUnifiedRequestBytes+1024)
	for i := range hugeText {
		hugeText[i] = 'x'
	}

	result := &validate.Result{
		Model: "gpt-5",
		Messages: []unified.Message{
			{Role: unified.RoleUser, Blocks: []unified.Block{{Type: unified.BlockText, Text: string(hugeText)}}},
		},
	}

	_, err := Build(Input{Result: result, Effort: unified.EffortNone})
	require.Error(t, err)
}
