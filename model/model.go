package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/brandmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Effort is a coarse reasoning-effort hint. Providers map it to their own
// knobs (thinking budget, reasoning_effort). The empty value leaves the
// provider default in place.
type Effort string

const (
	EffortDefault Effort = ""
	EffortLow     Effort = "low"
	EffortMedium  Effort = "medium"
	EffortHigh    Effort = "high"
)

// ParseEffort validates s as an Effort.
func ParseEffort(s string) (Effort, error) {
	switch e := Effort(s); e {
	case EffortDefault, EffortLow, EffortMedium, EffortHigh:
		return e, nil
	default:
		return EffortDefault, fmt.Errorf("unknown reasoning effort %q", s)
	}
}

// Request captures the normalized model input produced by the planner.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Effort       Effort           `json:"effort,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the planner to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by Collect when the model closed its stream
// without emitting a final response.
var ErrNoResponse = errors.New("model produced no final response")

// Collect drives m to completion and returns its final (non-partial)
// response. Partial chunks are discarded.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Response
		found bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final, found = r, true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !found {
		return Response{}, ErrNoResponse
	}

	return final, nil
}

// TextResponse builds a final assistant response carrying only text.
func TextResponse(text string) Response {
	return Response{
		Content:      core.NewTextContent(core.RoleAssistant, text),
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a final assistant response requesting the given
// function calls.
func ToolCallResponse(calls ...core.FunctionCall) Response {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}

	return Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: "tool_calls",
	}
}
