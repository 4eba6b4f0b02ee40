package dispatch

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/unified"
)

type fakeRuntime struct {
	converseOut       *bedrockruntime.ConverseOutput
	converseErr       error
	converseStreamOut *bedrockruntime.ConverseStreamOutput
	converseStreamErr error
}

func (f *fakeRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return f.converseOut, f.converseErr
}

func (f *fakeRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return f.converseStreamOut, f.converseStreamErr
}

func TestBedrockBackendDispatch(t *testing.T) {
	out := &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: "hi there"},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(3),
			OutputTokens: aws.Int32(4),
			TotalTokens:  aws.Int32(7),
		},
	}

	backend := NewBedrockBackend(nil, "anthropic.claude-3-sonnet")
	backend.runtime = &fakeRuntime{converseOut: out}

	req := &unified.Request{
		Model: "claude",
		Input: []unified.Message{{Role: unified.RoleUser, Blocks: []unified.Block{{Type: unified.BlockText, Text: "hi"}}}},
	}
	resp, err := backend.Dispatch(t.Context(), req)
	require.NoError(t, err)
	require.Len(t, resp.Output, 1)
	require.Equal(t, "hi there", resp.Output[0].Text)
	require.Equal(t, unified.FinishStop, resp.FinishReason)
	require.Equal(t, 3, resp.Usage.InputTokens)
	require.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestBedrockBackendDispatchToolUse(t *testing.T) {
	out := &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String("call-1"),
						Name:      aws.String("lookup"),
					}},
				},
			},
		},
		StopReason: brtypes.StopReasonToolUse,
	}

	backend := NewBedrockBackend(nil, "anthropic.claude-3-sonnet")
	backend.runtime = &fakeRuntime{converseOut: out}

	resp, err := backend.Dispatch(t.Context(), &unified.Request{Model: "claude"})
	require.NoError(t, err)
	require.Equal(t, unified.FinishToolCalls, resp.FinishReason)
	require.Equal(t, "call-1", resp.Output[0].ToolCallID)
	require.Equal(t, "lookup", resp.Output[0].ToolCallName)
}

func TestBedrockBackendDispatchError(t *testing.T) {
	backend := NewBedrockBackend(nil, "anthropic.claude-3-sonnet")
	backend.runtime = &fakeRuntime{converseErr: context.DeadlineExceeded}

	_, err := backend.Dispatch(t.Context(), &unified.Request{Model: "claude"})
	require.Error(t, err)
}
