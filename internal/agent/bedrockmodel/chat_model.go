// Package bedrockmodel adapts the AWS Bedrock Converse API to the eino
// ToolCallingChatModel contract so the react agent can drive Bedrock-hosted
// models (Amazon Nova, Anthropic Claude) without a provider-specific graph.
package bedrockmodel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	errx "github.com/fintalk/server/internal/core/error"
	logx "github.com/fintalk/server/pkg/logger"
)

// Config controls inference for the Converse calls.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// ChatModel implements model.ToolCallingChatModel over Bedrock Converse.
type ChatModel struct {
	client *bedrockruntime.Client
	config Config
	tools  []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

func New(client *bedrockruntime.Client, config Config) *ChatModel {
	return &ChatModel{client: client, config: config}
}

// WithTools returns a copy of the model bound to the given toolset.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) == 0 {
		return nil, fmt.Errorf("no tools to bind")
	}
	return &ChatModel{client: m.client, config: m.config, tools: tools}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req, err := m.buildRequest(input, opts...)
	if err != nil {
		return nil, err
	}

	out, err := m.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         req.modelID,
		Messages:        req.messages,
		System:          req.system,
		InferenceConfig: req.inference,
		ToolConfig:      req.toolConfig,
	})
	if err != nil {
		return nil, errx.WrapBedrock(err)
	}

	msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, errx.New(errx.CodeAgentExecution, "Agent execution failed", "unexpected converse output type")
	}

	msg, err := convertOutputMessage(msgOut.Value)
	if err != nil {
		return nil, err
	}
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: finishReason(out.StopReason),
		Usage:        convertUsage(out.Usage),
	}
	return msg, nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.buildRequest(input, opts...)
	if err != nil {
		return nil, err
	}

	out, err := m.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         req.modelID,
		Messages:        req.messages,
		System:          req.system,
		InferenceConfig: req.inference,
		ToolConfig:      req.toolConfig,
	})
	if err != nil {
		return nil, errx.WrapBedrock(err)
	}

	reader, writer := schema.Pipe[*schema.Message](8)
	go pumpStream(out.GetStream(), writer)
	return reader, nil
}

// converseRequest is the provider-shaped request assembled from eino inputs.
type converseRequest struct {
	modelID    *string
	messages   []types.Message
	system     []types.SystemContentBlock
	inference  *types.InferenceConfiguration
	toolConfig *types.ToolConfiguration
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts ...model.Option) (*converseRequest, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.config.Model,
		MaxTokens:   &m.config.MaxTokens,
		Temperature: &m.config.Temperature,
	}, opts...)

	system, messages, err := convertMessages(input)
	if err != nil {
		return nil, err
	}

	req := &converseRequest{
		modelID:  options.Model,
		messages: messages,
		system:   system,
		inference: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(*options.MaxTokens)),
			Temperature: options.Temperature,
		},
	}

	tools := m.tools
	if len(options.Tools) > 0 {
		tools = options.Tools
	}
	if len(tools) > 0 {
		toolConfig, err := convertTools(tools)
		if err != nil {
			return nil, err
		}
		req.toolConfig = toolConfig
	}

	return req, nil
}

// convertMessages splits out system prompts and maps the rest onto Converse
// roles. Bedrock expects tool results inside user-role messages, and rejects
// consecutive messages with the same role, so adjacent tool results collapse
// into one user message.
func convertMessages(input []*schema.Message) ([]types.SystemContentBlock, []types.Message, error) {
	var system []types.SystemContentBlock
	var messages []types.Message

	for _, in := range input {
		switch in.Role {
		case schema.System:
			system = append(system, &types.SystemContentBlockMemberText{Value: in.Content})

		case schema.User:
			messages = append(messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: in.Content}},
			})

		case schema.Assistant:
			var content []types.ContentBlock
			if in.Content != "" {
				content = append(content, &types.ContentBlockMemberText{Value: in.Content})
			}
			for _, tc := range in.ToolCalls {
				var args map[string]any
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("invalid tool call arguments: %w", err)
					}
				}
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(tc.ID),
						Name:      aws.String(tc.Function.Name),
						Input:     document.NewLazyDocument(args),
					},
				})
			}
			messages = append(messages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: content,
			})

		case schema.Tool:
			result := &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(in.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: in.Content},
					},
				},
			}
			if n := len(messages); n > 0 && messages[n-1].Role == types.ConversationRoleUser && isToolResultOnly(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, result)
			} else {
				messages = append(messages, types.Message{
					Role:    types.ConversationRoleUser,
					Content: []types.ContentBlock{result},
				})
			}

		default:
			return nil, nil, fmt.Errorf("unsupported message role: %s", in.Role)
		}
	}

	return system, messages, nil
}

func isToolResultOnly(msg types.Message) bool {
	for _, block := range msg.Content {
		if _, ok := block.(*types.ContentBlockMemberToolResult); !ok {
			return false
		}
	}
	return len(msg.Content) > 0
}

// convertTools maps eino tool descriptors to Converse tool specifications.
// The parameter schema goes through OpenAPI v3 JSON since Bedrock takes a
// free-form JSON schema document.
func convertTools(tools []*schema.ToolInfo) (*types.ToolConfiguration, error) {
	out := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var input map[string]any
		if t.ParamsOneOf != nil {
			openapi, err := t.ParamsOneOf.ToOpenAPIV3()
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			raw, err := json.Marshal(openapi)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, fmt.Errorf("tool %s: %w", t.Name, err)
			}
		}
		out = append(out, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Desc),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(input),
				},
			},
		})
	}
	return &types.ToolConfiguration{Tools: out}, nil
}

func convertOutputMessage(msg types.Message) (*schema.Message, error) {
	out := &schema.Message{Role: schema.Assistant}
	for _, block := range msg.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			out.Content += b.Value
		case *types.ContentBlockMemberToolUse:
			args, err := marshalDocument(b.Value.Input)
			if err != nil {
				return nil, err
			}
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Type: "function",
				Function: schema.FunctionCall{
					Name:      aws.ToString(b.Value.Name),
					Arguments: args,
				},
			})
		}
	}
	return out, nil
}

func marshalDocument(doc document.Interface) (string, error) {
	if doc == nil {
		return "{}", nil
	}
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return "", fmt.Errorf("failed to decode tool input: %w", err)
	}
	return string(raw), nil
}

func convertUsage(usage *types.TokenUsage) *schema.TokenUsage {
	if usage == nil {
		return nil
	}
	return &schema.TokenUsage{
		PromptTokens:     int(aws.ToInt32(usage.InputTokens)),
		CompletionTokens: int(aws.ToInt32(usage.OutputTokens)),
		TotalTokens:      int(aws.ToInt32(usage.TotalTokens)),
	}
}

func finishReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return "stop"
	case types.StopReasonToolUse:
		return "tool_calls"
	case types.StopReasonMaxTokens:
		return "length"
	default:
		return string(reason)
	}
}

// pumpStream translates ConverseStream events into eino message chunks. Tool
// call fragments carry their block index so downstream concatenation can
// reassemble the argument JSON.
func pumpStream(stream *bedrockruntime.ConverseStreamEventStream, writer *schema.StreamWriter[*schema.Message]) {
	defer writer.Close()
	defer stream.Close()

	toolIndex := -1
	for event := range stream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if start, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				toolIndex++
				idx := toolIndex
				chunk := &schema.Message{
					Role: schema.Assistant,
					ToolCalls: []schema.ToolCall{{
						Index: &idx,
						ID:    aws.ToString(start.Value.ToolUseId),
						Type:  "function",
						Function: schema.FunctionCall{
							Name: aws.ToString(start.Value.Name),
						},
					}},
				}
				if writer.Send(chunk, nil) {
					return
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				chunk := &schema.Message{Role: schema.Assistant, Content: delta.Value}
				if writer.Send(chunk, nil) {
					return
				}
			case *types.ContentBlockDeltaMemberToolUse:
				idx := toolIndex
				chunk := &schema.Message{
					Role: schema.Assistant,
					ToolCalls: []schema.ToolCall{{
						Index: &idx,
						Function: schema.FunctionCall{
							Arguments: aws.ToString(delta.Value.Input),
						},
					}},
				}
				if writer.Send(chunk, nil) {
					return
				}
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			chunk := &schema.Message{
				Role:         schema.Assistant,
				ResponseMeta: &schema.ResponseMeta{FinishReason: finishReason(ev.Value.StopReason)},
			}
			if writer.Send(chunk, nil) {
				return
			}

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				chunk := &schema.Message{
					Role:         schema.Assistant,
					ResponseMeta: &schema.ResponseMeta{Usage: convertUsage(ev.Value.Usage)},
				}
				if writer.Send(chunk, nil) {
					return
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		logx.Error().Err(err).Msg("converse stream failed")
		writer.Send(nil, errx.WrapBedrock(err))
	}
}
