// Package anthropic provides a model.Model backed by the Anthropic Messages
// API. It serves as the general reasoning backend: a reasoning-effort hint is
// mapped to an extended thinking budget.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/model"
)

// Thinking budgets per effort level, in tokens.
const (
	BudgetLow    int64 = 1024
	BudgetMedium int64 = 4096
	BudgetHigh   int64 = 16000
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaudeSonnet4_5,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Generate implements model.Model. Only non-streaming completions are issued;
// the single final response is delivered on the returned channel.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.client.Messages.New(ctx, m.buildParams(req))
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		out <- convertResponse(resp)
	}()

	return out, errCh
}

// buildParams assembles the Messages API request.
func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Contents),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if system := systemBlocks(req); len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
		return params
	}

	// Thinking is only requested for tool-free turns: continuing a tool loop
	// with thinking enabled requires replaying signed thinking blocks.
	if budget := thinkingBudget(req.Effort); budget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		params.Temperature = anthropic.Float(1)
		if params.MaxTokens <= budget {
			params.MaxTokens = budget + m.opts.MaxTokens
		}
	}

	return params
}

func thinkingBudget(e model.Effort) int64 {
	switch e {
	case model.EffortLow:
		return BudgetLow
	case model.EffortMedium:
		return BudgetMedium
	case model.EffortHigh:
		return BudgetHigh
	default:
		return 0
	}
}

func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}

	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}

	return blocks
}

// buildMessages converts normalized contents to Anthropic messages. Tool
// responses travel as tool_result blocks inside a user turn.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, c := range contents {
		var blocks []anthropic.ContentBlockParamUnion

		switch c.Role {
		case "system":
			continue
		case core.RoleAssistant:
			blocks = assistantBlocks(c.Parts)
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}

			continue
		case core.RoleTool:
			blocks = toolResultBlocks(c.Parts)
		default:
			for _, p := range c.Parts {
				if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(tp.Text))
				}
			}
		}

		if len(blocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	return messages
}

func assistantBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			input := map[string]any{}
			if part.FunctionCall.Arguments != "" {
				_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &input)
			}

			blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, input, part.FunctionCall.Name))
		}
	}

	return blocks
}

func toolResultBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		fr, ok := p.(core.FunctionResponsePart)
		if !ok || fr.FunctionResponse.ID == "" {
			continue
		}

		if fr.FunctionResponse.Error != "" {
			blocks = append(blocks, anthropic.NewToolResultBlock(fr.FunctionResponse.ID, fr.FunctionResponse.Error, true))
			continue
		}

		blocks = append(blocks, anthropic.NewToolResultBlock(fr.FunctionResponse.ID, stringify(fr.FunctionResponse.Response), false))
	}

	return blocks
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}

		return string(b)
	}
}

// buildTools converts tool definitions to Anthropic tool params.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}

		if params := t.Function.Parameters; params != nil {
			if props, ok := params["properties"]; ok {
				schema.Properties = props
			}

			switch req := params["required"].(type) {
			case []string:
				schema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}

		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if t.Function.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Function.Description)
		}
	}

	return out
}

func convertResponse(resp *anthropic.Message) model.Response {
	var parts []core.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
		case "tool_use":
			tu := block.AsToolUse()
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: string(tu.Input),
			}})
		}
	}

	finish := "stop"
	if resp.StopReason == anthropic.StopReasonToolUse {
		finish = "tool_calls"
	} else if resp.StopReason != "" {
		finish = string(resp.StopReason)
	}

	return model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
