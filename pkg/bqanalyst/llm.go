package bqanalyst

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// ToolDef declares one tool the model may call.
type ToolDef struct {
	Name        string
	Description string

	// Properties is the JSON schema property map of the tool's input.
	Properties map[string]any
	Required   []string
}

// Reply is one model turn.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// LLM is the language model boundary. The production implementation is
// AnthropicLLM; tests substitute scripted fakes.
type LLM interface {
	Complete(ctx context.Context, system string, msgs []Message, tools []ToolDef) (Reply, error)
}

// AnthropicLLM calls the Anthropic Messages API.
type AnthropicLLM struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropicLLM builds the production model client. The API key is read
// from ANTHROPIC_API_KEY by the underlying SDK.
func NewAnthropicLLM(model string, temperature float64, maxOutputTokens int) *AnthropicLLM {
	return &AnthropicLLM{
		client:      anthropic.NewClient(),
		model:       model,
		temperature: temperature,
		maxTokens:   int64(maxOutputTokens),
	}
}

// Complete implements LLM.
func (l *AnthropicLLM) Complete(ctx context.Context, system string, msgs []Message, tools []ToolDef) (Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(l.model),
		MaxTokens:   l.maxTokens,
		Temperature: anthropic.Float(l.temperature),
		Messages:    buildMessages(msgs),
		Tools:       buildTools(tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := l.client.Messages.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var reply Reply
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return Reply{}, fmt.Errorf("decode tool input for %s: %w", b.Name, err)
				}
			}
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:   b.ID,
				Name: b.Name,
				Args: args,
			})
		}
	}
	return reply, nil
}

// buildMessages converts the transcript to API message params.
// Tool messages travel as user-role tool_result blocks, per the API's
// conversation shape.
func buildMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				input := any(call.Args)
				if call.Args == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: input,
					},
				})
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError),
			))
		}
	}
	return out
}

// buildTools converts tool declarations to API tool params.
func buildTools(tools []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		props := def.Properties
		if props == nil {
			props = map[string]any{}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       "object",
					Properties: props,
					Required:   def.Required,
				},
			},
		})
	}
	return out
}
