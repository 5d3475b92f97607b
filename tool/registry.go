package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/internal/util"
	"github.com/hupe1980/brandmesh/model"
)

// DefaultMaxResultBytes bounds a tool output reinserted into the transcript.
const DefaultMaxResultBytes = 8 * 1024

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	MaxResultBytes int
}

// Registry pairs the descriptors a model may call with the shims that serve
// them for one invocation.
type Registry struct {
	descriptors []Descriptor
	index       map[string]Descriptor
	shims       Shims
	opts        RegistryOptions
}

// NewRegistry builds a registry. Descriptor names must be unique.
func NewRegistry(descriptors []Descriptor, shims Shims, optFns ...func(o *RegistryOptions)) (*Registry, error) {
	opts := RegistryOptions{MaxResultBytes: DefaultMaxResultBytes}
	for _, fn := range optFns {
		fn(&opts)
	}

	index := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if strings.TrimSpace(d.Name) == "" {
			return nil, &core.ValidationError{Field: "name", Message: "tool descriptor without name"}
		}
		if _, dup := index[d.Name]; dup {
			return nil, &core.ValidationError{Field: "name", Message: fmt.Sprintf("duplicate tool %q", d.Name)}
		}
		index[d.Name] = d
	}

	if shims == nil {
		shims = Shims{}
	}

	return &Registry{
		descriptors: append([]Descriptor(nil), descriptors...),
		index:       index,
		shims:       shims,
		opts:        opts,
	}, nil
}

// Descriptors returns the registered descriptors in declaration order.
func (r *Registry) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descriptors...)
}

// Definitions returns the descriptors as model tool definitions.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, len(r.descriptors))
	for i, d := range r.descriptors {
		defs[i] = d.Definition()
	}

	return defs
}

// Has reports whether name is a registered descriptor.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Dispatch decodes rawArgs, validates them against the descriptor schema and
// runs the injected shim. Errors are always *ToolError. A descriptor without
// a shim yields an explanatory result rather than an error.
func (r *Registry) Dispatch(tc *core.ToolContext, name, rawArgs string) (Result, error) {
	logger := tc.Logger()
	start := time.Now()

	d, ok := r.index[name]
	if !ok {
		return Result{}, NewToolError(name, "unknown tool", CodeNotFound)
	}

	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return Result{}, &ToolError{
				Tool:    name,
				Message: fmt.Sprintf("arguments are not a JSON object: %v", err),
				Code:    CodeValidation,
			}
		}
	}

	if err := util.ValidateParameters(args, d.Parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", name, "error", err.Error())

		return Result{}, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	h, ok := r.shims[name]
	if !ok || h == nil {
		logger.Warn("tool.call.unmapped", "tool", name)
		return Output(fmt.Sprintf("tool %s is not available in this environment", name)), nil
	}

	res, err := r.run(tc, name, h, args)
	if err != nil {
		logger.Error("tool.call.failed", "tool", name, "fc_id", tc.FunctionCallID(), "error", err.Error())
		return Result{}, err
	}

	res.Output = r.bound(res.Output)

	logger.Debug("tool.call.completed", "tool", name, "fc_id", tc.FunctionCallID(),
		"duration_ms", time.Since(start).Milliseconds())

	return res, nil
}

func (r *Registry) run(tc *core.ToolContext, name string, h Handler, args map[string]any) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = Result{}, NewToolError(name, fmt.Sprintf("panic: %v", p), CodePanic)
		}
	}()

	res, err = h(tc, args)
	if err == nil {
		return res, nil
	}

	var te *ToolError
	if errors.As(err, &te) {
		return Result{}, te
	}

	return Result{}, NewToolError(name, err.Error(), CodeExecution)
}

// bound keeps small outputs as they are and replaces oversized ones with a
// truncated rendering.
func (r *Registry) bound(out any) any {
	if r.opts.MaxResultBytes <= 0 {
		return out
	}

	rendered := Render(out)
	if len(rendered) <= r.opts.MaxResultBytes {
		return out
	}

	return util.Truncate(rendered, r.opts.MaxResultBytes)
}

// Render turns a tool output into the text placed in the transcript.
func Render(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(b)
	}
}
