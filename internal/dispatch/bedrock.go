package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/laiskydev/respgate/internal/apperr"
	"github.com/laiskydev/respgate/internal/unified"
)

// runtimeClient is the subset of *bedrockruntime.Client this backend
// needs, so tests can substitute a fake rather than talking to AWS.
type runtimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockBackend is the secondary upstream (spec §1), talking to AWS
// Bedrock's Converse API rather than the raw InvokeModel body format, so
// message/tool encoding is the SDK's typed structures instead of a
// hand-rolled per-model JSON envelope.
type BedrockBackend struct {
	runtime runtimeClient
	modelID string
}

// NewBedrockBackend builds a BedrockBackend against an already-configured
// bedrockruntime.Client (constructed by the caller from aws-sdk-go-v2/config
// so region/credential resolution stays in one place, per spec §6's
// AWS_BEDROCK_REGION variable).
func NewBedrockBackend(client *bedrockruntime.Client, modelID string) *BedrockBackend {
	return &BedrockBackend{runtime: client, modelID: modelID}
}

func (b *BedrockBackend) Name() string { return "bedrock" }

func encodeMessages(msgs []unified.Message) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	var converse []brtypes.Message
	var system []brtypes.SystemContentBlock

	for _, m := range msgs {
		if m.Role == unified.RoleSystem {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.PlainText()})
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == unified.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		blocks := make([]brtypes.ContentBlock, 0, len(m.Blocks))
		for _, blk := range m.Blocks {
			switch blk.Type {
			case unified.BlockText:
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: blk.Text})
			case unified.BlockToolUse:
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(blk.ToolUseID),
					Name:      aws.String(blk.ToolName),
				}})
			case unified.BlockToolResult:
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(blk.ToolResultTargetID),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: fmt.Sprint(blk.ToolResultPayload)},
					},
				}})
			}
		}
		converse = append(converse, brtypes.Message{Role: role, Content: blocks})
	}
	return converse, system
}

func encodeTools(tools []unified.ToolDeclaration) *brtypes.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	var list []brtypes.Tool
	for _, tool := range tools {
		list = append(list, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(tool.Name),
			Description: aws.String(tool.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: documentFromMap(tool.Schema)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: list}
}

func (b *BedrockBackend) inferenceConfig(req *unified.Request) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	set := false
	if req.MaxOutputTokens > 0 {
		v := int32(req.MaxOutputTokens)
		cfg.MaxTokens = &v
		set = true
	}
	if req.Temperature != nil {
		v := float32(*req.Temperature)
		cfg.Temperature = &v
		set = true
	}
	if req.TopP != nil {
		v := float32(*req.TopP)
		cfg.TopP = &v
		set = true
	}
	if !set {
		return nil
	}
	return &cfg
}

func (b *BedrockBackend) Dispatch(ctx context.Context, req *unified.Request) (*unified.Response, error) {
	messages, system := encodeMessages(req.Input)
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.modelID),
		Messages:        messages,
		System:          system,
		ToolConfig:      encodeTools(req.Tools),
		InferenceConfig: b.inferenceConfig(req),
	}

	out, err := b.runtime.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	resp := &unified.Response{Model: req.Model}
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				resp.Output = append(resp.Output, unified.OutputItem{Type: unified.OutputText, Text: v.Value})
			case *brtypes.ContentBlockMemberToolUse:
				resp.Output = append(resp.Output, unified.OutputItem{
					Type:         unified.OutputToolCall,
					ToolCallID:   aws.ToString(v.Value.ToolUseId),
					ToolCallName: aws.ToString(v.Value.Name),
				})
			}
		}
	}
	if out.Usage != nil {
		resp.Usage = unified.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	resp.FinishReason = bedrockStopReason(out.StopReason)
	return resp, nil
}

func (b *BedrockBackend) DispatchStream(ctx context.Context, req *unified.Request) (<-chan unified.StreamChunk, error) {
	messages, system := encodeMessages(req.Input)
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(b.modelID),
		Messages:        messages,
		System:          system,
		ToolConfig:      encodeTools(req.Tools),
		InferenceConfig: b.inferenceConfig(req),
	}

	out, err := b.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	ch := make(chan unified.StreamChunk)
	go func() {
		defer close(ch)
		stream := out.GetStream()
		defer stream.Close()

		completed := false
		var stopReason brtypes.StopReason
		for event := range stream.Events() {
			switch v := event.(type) {
			case *brtypes.ConverseStreamOutputMemberMessageStop:
				stopReason = v.Value.StopReason
			case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
				if delta, ok := v.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok {
					select {
					case ch <- unified.StreamChunk{Type: unified.StreamTextDelta, TextDelta: delta.Value, OutputIndex: int(aws.ToInt32(v.Value.ContentBlockIndex))}:
					case <-ctx.Done():
						return
					}
				}
			case *brtypes.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					completed = true
					finish := unified.FinishLength
					if stopReason != "" {
						finish = bedrockStopReason(stopReason)
					}
					select {
					case ch <- unified.StreamChunk{
						Type:         unified.StreamCompleted,
						FinishReason: finish,
						Usage: unified.Usage{
							InputTokens:  int(aws.ToInt32(v.Value.Usage.InputTokens)),
							OutputTokens: int(aws.ToInt32(v.Value.Usage.OutputTokens)),
							TotalTokens:  int(aws.ToInt32(v.Value.Usage.TotalTokens)),
						},
					}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if !completed {
			// The event channel closed without a metadata event carrying
			// usage: the Backend contract requires exactly one terminal
			// chunk, so treat this as truncation.
			select {
			case ch <- unified.StreamChunk{Type: unified.StreamCompleted, FinishReason: unified.FinishLength}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func bedrockStopReason(reason brtypes.StopReason) unified.FinishReason {
	switch reason {
	case brtypes.StopReasonToolUse:
		return unified.FinishToolCalls
	case brtypes.StopReasonMaxTokens:
		return unified.FinishLength
	default:
		return unified.FinishStop
	}
}

func classifyBedrockError(err error) error {
	return apperr.New(apperr.KindUpstreamNetwork, "bedrock converse failed", err)
}

func documentFromMap(m map[string]any) document.Interface {
	return document.NewLazyDocument(m)
}
