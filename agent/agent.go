package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/planner"
	"github.com/hupe1980/brandmesh/tool"
)

// Default agent names. Effects address agents by name.
const (
	NameIntel      = "intel"
	NameMarketing  = "marketing"
	NameCompliance = "compliance"
	NameOperations = "operations"
)

// Stimulus is an external request for an agent, typically a user message.
type Stimulus struct {
	Text     string         `json:"text"`
	From     string         `json:"from,omitempty"`
	ThreadID string         `json:"thread_id,omitempty"`
	History  []core.Content `json:"-"`
}

// Empty reports whether s carries no request.
func (s *Stimulus) Empty() bool { return s == nil || s.Text == "" }

// ActResult is what Act hands back to the runner.
type ActResult struct {
	Memory  core.AgentMemory
	Log     core.AgentLogEntry
	Reply   string
	Effects []core.Effect
	Steps   []planner.Step
}

// Agent is the three-phase contract every brand agent implements.
type Agent interface {
	Name() string
	Kind() core.AgentKind
	// Descriptors returns the agent-specific tools; shared tools are added
	// by the agent itself when it plans.
	Descriptors() []tool.Descriptor
	Initialize(brand core.BrandDomainMemory, mem core.AgentMemory) (core.AgentMemory, error)
	Orient(brand core.BrandDomainMemory, mem core.AgentMemory, stimulus *Stimulus) *core.Target
	Act(ctx context.Context, brand core.BrandDomainMemory, mem core.AgentMemory, target core.Target, shims tool.Shims, stimulus *Stimulus) (ActResult, error)
}

// Roster is a goroutine-safe directory of agents by name.
type Roster struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRoster creates a roster holding agents.
func NewRoster(agents ...Agent) *Roster {
	r := &Roster{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}

	return r
}

// Register adds a, failing when the name is taken.
func (r *Roster) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[a.Name()]; ok {
		return fmt.Errorf("agent %q already registered", a.Name())
	}

	r.agents[a.Name()] = a

	return nil
}

// Get returns the agent called name.
func (r *Roster) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: agent %q", core.ErrNotFound, name)
	}

	return a, nil
}

// Names returns the registered names, sorted.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

type invocationKey struct{}

// WithInvocation tags ctx with an invocation id that ends up in tool scopes.
func WithInvocation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationKey{}, id)
}

// InvocationFromContext returns the id set by WithInvocation.
func InvocationFromContext(ctx context.Context) string {
	id, _ := ctx.Value(invocationKey{}).(string)
	return id
}
