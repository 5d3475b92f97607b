package core

import (
	"context"
	"time"

	"github.com/hupe1980/brandmesh/logging"
)

// Scope identifies who a tool call runs on behalf of.
type Scope struct {
	BrandID      string
	AgentName    string
	AgentKind    AgentKind
	ThreadID     string
	InvocationID string
}

// ToolContext provides the constrained surface handed to tool shims: the
// request context, the calling scope, the function call id, a clock and a
// logger. It carries no mutable state; side effects travel as Effects.
type ToolContext struct {
	ctx            context.Context
	scope          Scope
	functionCallID string
	clock          Clock

	*loggerAdapter
}

// NewToolContext constructs a tool context. A nil clock defaults to SystemClock.
func NewToolContext(ctx context.Context, scope Scope, clock Clock, logger logging.Logger) *ToolContext {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ToolContext{
		ctx:           ctx,
		scope:         scope,
		clock:         clock,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// WithCall returns a copy bound to a specific function call id.
func (tc *ToolContext) WithCall(functionCallID string) *ToolContext {
	cp := *tc
	cp.functionCallID = functionCallID
	return &cp
}

// WithContext returns a copy using ctx.
func (tc *ToolContext) WithContext(ctx context.Context) *ToolContext {
	cp := *tc
	cp.ctx = ctx
	return &cp
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Scope returns the calling scope.
func (tc *ToolContext) Scope() Scope { return tc.scope }

// BrandID returns the brand the call runs for.
func (tc *ToolContext) BrandID() string { return tc.scope.BrandID }

// AgentName returns the calling agent's name.
func (tc *ToolContext) AgentName() string { return tc.scope.AgentName }

// ThreadID returns the conversation thread, if any.
func (tc *ToolContext) ThreadID() string { return tc.scope.ThreadID }

// FunctionCallID returns the model-assigned call id.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Now returns the current time from the injected clock.
func (tc *ToolContext) Now() time.Time { return tc.clock.Now() }

// Clock returns the injected clock.
func (tc *ToolContext) Clock() Clock { return tc.clock }
