// Package openai provides a model.Model backed by the OpenAI Chat Completions
// API. It serves as the tool-calling backend; a reasoning-effort hint is
// forwarded as reasoning_effort.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/model"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Generate implements model.Model with a single non-streaming completion.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
		if err != nil {
			errCh <- fmt.Errorf("openai api error: %w", err)
			return
		}

		r, err := convertResponse(resp)
		if err != nil {
			errCh <- err
			return
		}

		out <- r
	}()

	return out, errCh
}

// buildParams assembles the request parameters including tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	// Reasoning models reject a custom temperature.
	if effort, ok := reasoningEffort(req.Effort); ok {
		params.ReasoningEffort = effort
	} else {
		params.Temperature = openai.Float(m.opts.Temperature)
	}

	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  t.Function.Parameters,
			},
		}
	}

	params.Tools = tools

	return params
}

func reasoningEffort(e model.Effort) (openai.ReasoningEffort, bool) {
	switch e {
	case model.EffortLow:
		return openai.ReasoningEffortLow, true
	case model.EffortMedium:
		return openai.ReasoningEffortMedium, true
	case model.EffortHigh:
		return openai.ReasoningEffortHigh, true
	default:
		return "", false
	}
}

// buildMessages converts normalized contents into chat messages. Each tool
// response becomes its own tool message keyed by call id.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, c := range req.Contents {
		switch c.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(c.Text()))
		case core.RoleAssistant:
			messages = append(messages, assistantMessage(c))
		case core.RoleTool:
			for _, p := range c.Parts {
				fr, ok := p.(core.FunctionResponsePart)
				if !ok || fr.FunctionResponse.ID == "" {
					continue
				}

				body := stringify(fr.FunctionResponse.Response)
				if fr.FunctionResponse.Error != "" {
					body = "error: " + fr.FunctionResponse.Error
				}

				messages = append(messages, openai.ToolMessage(body, fr.FunctionResponse.ID))
			}
		default:
			if text := c.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}

	return messages
}

func assistantMessage(c core.Content) openai.ChatCompletionMessageParamUnion {
	calls := c.FunctionCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(c.Text())
	}

	msg := openai.ChatCompletionAssistantMessageParam{}
	if text := c.Text(); text != "" {
		msg.Content.OfString = openai.String(text)
	}

	for _, fc := range calls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: fc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
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

func convertResponse(resp *openai.ChatCompletion) (model.Response, error) {
	if len(resp.Choices) == 0 {
		return model.Response{}, errors.New("openai: no choices returned")
	}

	ch0 := resp.Choices[0]

	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}

	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	return model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
