package pipeline

import (
	"context"
	"time"
)

// CallbackType names the points in a run where callbacks execute.
type CallbackType string

const (
	// CallbackBeforeStage runs when a stage starts. An error fails the stage.
	CallbackBeforeStage CallbackType = "before_stage"
	// CallbackAfterStage runs after a stage succeeded and was persisted.
	CallbackAfterStage CallbackType = "after_stage"
	// CallbackOnError runs after a stage failed.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the stage a callback runs for.
type CallbackContext struct {
	Type     CallbackType
	Stage    Stage
	State    State
	Duration time.Duration
	Err      error
}

// Callback hooks into the run lifecycle.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback wraps a function as a Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback creates a FunctionCallback.
func NewFunctionCallback(t CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: t, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	return c.fn(ctx, cc)
}

// callbacks groups callbacks by type. Registration happens before runs start,
// execution is safe for concurrent runs.
type callbacks map[CallbackType][]Callback

func (cs callbacks) register(c Callback) {
	cs[c.Type()] = append(cs[c.Type()], c)
}

// execute runs the callbacks of cc.Type in registration order and stops at
// the first error.
func (cs callbacks) execute(ctx context.Context, cc *CallbackContext) error {
	for _, c := range cs[cc.Type] {
		if err := c.Execute(ctx, cc); err != nil {
			return err
		}
	}

	return nil
}
