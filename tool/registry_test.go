package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/logging"
)

var scanDescriptor = Descriptor{
	Name:        "scan_competitor",
	Description: "Scan a competitor menu",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"competitor_id": map[string]any{"type": "string"},
		},
		"required": []string{"competitor_id"},
	},
}

func newToolContext() *core.ToolContext {
	return core.NewToolContext(context.Background(), core.Scope{BrandID: "b1", AgentName: "intel"}, nil, logging.NoOpLogger{})
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Descriptor{scanDescriptor, scanDescriptor}, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRegistry_Definitions(t *testing.T) {
	r, err := NewRegistry(append([]Descriptor{scanDescriptor}, SharedDescriptors()...), nil)
	require.NoError(t, err)

	defs := r.Definitions()
	require.Len(t, defs, 1+len(SharedDescriptors()))
	assert.Equal(t, "scan_competitor", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)
	assert.True(t, r.Has(HandoffToAgent))
}

func TestRegistry_Dispatch(t *testing.T) {
	r, err := NewRegistry([]Descriptor{scanDescriptor}, Shims{
		"scan_competitor": func(_ *core.ToolContext, args map[string]any) (Result, error) {
			return Output(map[string]any{"scanned": args["competitor_id"]}), nil
		},
	})
	require.NoError(t, err)

	res, err := r.Dispatch(newToolContext(), "scan_competitor", `{"competitor_id":"c1"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"scanned": "c1"}, res.Output)
}

func TestRegistry_DispatchErrors(t *testing.T) {
	r, err := NewRegistry([]Descriptor{scanDescriptor}, Shims{
		"scan_competitor": func(_ *core.ToolContext, args map[string]any) (Result, error) {
			if args["competitor_id"] == "panic" {
				panic("browser crashed")
			}
			return Result{}, errors.New("timeout")
		},
	})
	require.NoError(t, err)

	tc := newToolContext()

	tests := []struct {
		name string
		tool string
		args string
		code string
	}{
		{"unknown tool", "nope", `{}`, CodeNotFound},
		{"invalid json", "scan_competitor", `{`, CodeValidation},
		{"missing required", "scan_competitor", `{}`, CodeValidation},
		{"wrong type", "scan_competitor", `{"competitor_id":5}`, CodeValidation},
		{"execution error", "scan_competitor", `{"competitor_id":"c1"}`, CodeExecution},
		{"panic", "scan_competitor", `{"competitor_id":"panic"}`, CodePanic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Dispatch(tc, tt.tool, tt.args)

			var te *ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.code, te.Code)
		})
	}
}

func TestRegistry_UnmappedShim(t *testing.T) {
	r, err := NewRegistry([]Descriptor{scanDescriptor}, nil)
	require.NoError(t, err)

	res, err := r.Dispatch(newToolContext(), "scan_competitor", `{"competitor_id":"c1"}`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "not available")
}

func TestRegistry_BoundsOutput(t *testing.T) {
	r, err := NewRegistry([]Descriptor{scanDescriptor}, Shims{
		"scan_competitor": func(*core.ToolContext, map[string]any) (Result, error) {
			return Output(strings.Repeat("x", 500)), nil
		},
	}, func(o *RegistryOptions) { o.MaxResultBytes = 100 })
	require.NoError(t, err)

	res, err := r.Dispatch(newToolContext(), "scan_competitor", `{"competitor_id":"c1"}`)
	require.NoError(t, err)

	out, ok := res.Output.(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len(out), 100)
	assert.True(t, strings.HasSuffix(out, "[truncated]"))
}

func TestSafe(t *testing.T) {
	failing := Safe("scan", func(*core.ToolContext, map[string]any) (Result, error) {
		return Result{}, errors.New("upstream 503")
	})

	res, err := failing(newToolContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, "scan failed: upstream 503", res.Output)

	panicking := Safe("scan", func(*core.ToolContext, map[string]any) (Result, error) {
		panic("nil browser")
	})

	res, err = panicking(newToolContext(), nil)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "temporarily unavailable")
}

func TestShimsMerge(t *testing.T) {
	a := Shims{"x": Safe("x", nil), "y": nil}
	b := Shims{"y": Safe("y", nil)}

	m := a.Merge(b)
	assert.Len(t, m, 2)
	assert.NotNil(t, m["y"])
	assert.Nil(t, a["y"])
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"s": "v", "n": float64(3), "l": []any{"a", 1, "b"}}

	assert.Equal(t, "v", StringArg(args, "s"))
	assert.Equal(t, "", StringArg(args, "missing"))
	assert.Equal(t, 3, IntArg(args, "n", 0))
	assert.Equal(t, 7, IntArg(args, "s", 7))
	assert.Equal(t, []string{"a", "b"}, StringSliceArg(args, "l"))
}
