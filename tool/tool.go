// Package tool separates what a model sees (Descriptor) from what runs
// (Handler). Descriptors are declared once per agent; handlers are injected
// per call as Shims so the same contract can be backed by a live integration
// in production and a stub in tests.
package tool

import (
	"fmt"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/model"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}

	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// Descriptor is the contract a model sees: a name, a description and a JSON
// schema for the arguments.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Definition converts d into a model tool definition.
func (d Descriptor) Definition() model.ToolDefinition {
	params := d.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		},
	}
}

// Result is what a handler produces: an output fed back to the model and any
// side effects for the runner to dispatch.
type Result struct {
	Output  any           `json:"output"`
	Effects []core.Effect `json:"-"`
}

// Handler executes a tool with already-validated arguments.
type Handler func(tc *core.ToolContext, args map[string]any) (Result, error)

// Shims maps tool names to their injected handlers.
type Shims map[string]Handler

// Merge returns a new Shims containing s overlaid with others, later entries
// winning.
func (s Shims) Merge(others ...Shims) Shims {
	out := make(Shims, len(s))
	for k, v := range s {
		out[k] = v
	}

	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}

	return out
}

// Output is shorthand for a Result without effects.
func Output(v any) Result { return Result{Output: v} }

// Safe wraps h so an integration failure becomes an explanatory result
// instead of an error. The planner then carries on with the next step.
func Safe(name string, h Handler) Handler {
	return func(tc *core.ToolContext, args map[string]any) (res Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				tc.Logger().Error("tool.safe.panic", "tool", name, "panic", fmt.Sprint(r))
				res, err = Output(fmt.Sprintf("%s is temporarily unavailable: %v", name, r)), nil
			}
		}()

		res, err = h(tc, args)
		if err != nil {
			tc.Logger().Warn("tool.safe.degraded", "tool", name, "error", err.Error())
			return Output(fmt.Sprintf("%s failed: %v", name, err)), nil
		}

		return res, nil
	}
}

// StringArg returns args[key] as a string, or "" when absent.
func StringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// IntArg returns args[key] as an int, or def when absent or not numeric.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

// StringSliceArg returns args[key] as a string slice, skipping non-strings.
func StringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}
