package model

import (
	"context"
	"sync"
)

// ScriptFunc produces the reply for the n-th call (zero based).
type ScriptFunc func(call int, req Request) (Response, error)

// ScriptedModel is a deterministic Model that replays a fixed script. It is
// used by tests and by the CLI's offline mode.
type ScriptedModel struct {
	info Info
	fn   ScriptFunc

	mu       sync.Mutex
	requests []Request
}

// NewScriptedModel replays responses in order. Once the script is exhausted
// the last response is repeated; an empty script always answers "ok".
func NewScriptedModel(responses ...Response) *ScriptedModel {
	return NewScriptedModelFunc(func(call int, _ Request) (Response, error) {
		if len(responses) == 0 {
			return TextResponse("ok"), nil
		}
		if call >= len(responses) {
			call = len(responses) - 1
		}

		return responses[call], nil
	})
}

// NewScriptedModelFunc builds a ScriptedModel around fn.
func NewScriptedModelFunc(fn ScriptFunc) *ScriptedModel {
	return &ScriptedModel{
		info: Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		fn:   fn,
	}
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	call := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}

		resp, err := m.fn(call, req)
		if err != nil {
			errCh <- err
			return
		}

		resp.Partial = false
		respCh <- resp
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Calls reports how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}
