package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/logging"
	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/planner"
	"github.com/hupe1980/brandmesh/tool"
)

var tracer = otel.Tracer("brandmesh/agent")

// Options configure a BaseAgent. Concrete agents take the same functional
// options.
type Options struct {
	Name          string
	Description   string
	Instruction   Instruction
	Model         model.Model
	MaxIterations int
	Effort        model.Effort
	Clock         core.Clock
	Logger        logging.Logger
	// ProgressLabel names the shared context block planner steps are
	// mirrored into. Empty disables progress publishing.
	ProgressLabel string
}

// TargetHandler performs the work for one maintenance target. mem is a
// private copy the handler may mutate and return.
type TargetHandler func(ctx context.Context, in ActInput) (ActResult, error)

// ActInput bundles what a target handler sees.
type ActInput struct {
	Brand       core.BrandDomainMemory
	Memory      core.AgentMemory
	Target      core.Target
	Shims       tool.Shims
	Stimulus    *Stimulus
	ToolContext *core.ToolContext
	Now         time.Time
}

// BaseAgent bundles identity, instruction rendering, the planner route for
// user requests and the Act safety boundary.
type BaseAgent struct {
	kind        core.AgentKind
	opts        Options
	descriptors []tool.Descriptor
	planner     *planner.Planner
}

// NewBaseAgent constructs a BaseAgent for kind.
func NewBaseAgent(kind core.AgentKind, defaults Options, descriptors []tool.Descriptor, optFns ...func(o *Options)) BaseAgent {
	opts := defaults
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Description == "" {
		opts.Description = fmt.Sprintf("Agent %s", opts.Name)
	}

	return BaseAgent{
		kind:        kind,
		opts:        opts,
		descriptors: descriptors,
		planner:     planner.New(func(o *planner.Options) { o.Logger = opts.Logger }),
	}
}

// Name returns the agent name.
func (b *BaseAgent) Name() string { return b.opts.Name }

// Kind returns the memory variant the agent owns.
func (b *BaseAgent) Kind() core.AgentKind { return b.kind }

// Description returns a short description of the agent's purpose.
func (b *BaseAgent) Description() string { return b.opts.Description }

// Descriptors returns the agent-specific tool descriptors.
func (b *BaseAgent) Descriptors() []tool.Descriptor {
	return append([]tool.Descriptor(nil), b.descriptors...)
}

// Now returns the agent clock's time.
func (b *BaseAgent) Now() time.Time { return b.opts.Clock.Now() }

// Initialize recomputes instructions, merges active brand objectives by id
// and sets the shared scope. Applying it twice yields the same memory.
func (b *BaseAgent) Initialize(brand core.BrandDomainMemory, mem core.AgentMemory) (core.AgentMemory, error) {
	if mem.Kind == "" {
		mem = core.NewAgentMemory(b.kind, brand.BrandID, b.opts.Name)
	} else {
		mem = mem.Clone()
	}

	if mem.Kind != b.kind {
		return core.AgentMemory{}, &core.ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("agent %s cannot own %s memory", b.opts.Name, mem.Kind),
		}
	}

	mem.BrandID = brand.BrandID
	mem.AgentName = b.opts.Name
	mem.SharedScope = "brand:" + brand.BrandID
	mem.Objectives = mergeObjectives(brand.ActiveObjectives(), brand.Objectives, mem.Objectives)

	instructions, err := b.opts.Instruction.Resolve(brand, mem)
	if err != nil {
		return core.AgentMemory{}, fmt.Errorf("render instructions: %w", err)
	}

	mem.Instructions = instructions

	return mem, mem.Validate()
}

// mergeObjectives keeps active brand objectives first, then agent-local ones
// whose id the brand does not define. An objective the brand defines but no
// longer has active is dropped.
func mergeObjectives(active, defined, local []core.Objective) []core.Objective {
	seen := make(map[string]struct{}, len(defined)+len(local))
	for _, o := range defined {
		seen[o.ID] = struct{}{}
	}

	out := make([]core.Objective, 0, len(active)+len(local))
	out = append(out, active...)

	for _, o := range local {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}
		out = append(out, o)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// Dispatch is the Act boundary shared by every agent. User requests go to the
// planner; other targets go to handlers. Handler errors and panics become an
// error log entry. An unknown target kind returns core.ErrUnknownTarget
// together with an error log entry.
func (b *BaseAgent) Dispatch(
	ctx context.Context,
	brand core.BrandDomainMemory,
	mem core.AgentMemory,
	target core.Target,
	shims tool.Shims,
	stimulus *Stimulus,
	handlers map[core.TargetKind]TargetHandler,
) (res ActResult, err error) {
	ctx, span := tracer.Start(ctx, "agent.act", trace.WithAttributes(
		attribute.String("agent", b.opts.Name),
		attribute.String("brand", brand.BrandID),
		attribute.String("target", target.String()),
	))
	defer span.End()

	now := b.Now()
	working := mem.Clone()
	working.LastActive = &now

	in := ActInput{
		Brand:       brand,
		Memory:      working,
		Target:      target,
		Shims:       shims,
		Stimulus:    stimulus,
		ToolContext: b.toolContext(ctx, brand, stimulus),
		Now:         now,
	}

	var handler TargetHandler
	if target.Kind == core.TargetUserRequest {
		handler = b.respond
	} else {
		handler = handlers[target.Kind]
	}

	if handler == nil {
		err := fmt.Errorf("%w: %s cannot act on %q", core.ErrUnknownTarget, b.opts.Name, target.String())
		span.RecordError(err)

		return ActResult{
			Memory: mem,
			Log:    b.logEntry(brand, target, stimulus, core.ActionError, err.Error()),
		}, err
	}

	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.Error("agent.act.panic", "agent", b.opts.Name, "target", target.String(), "panic", fmt.Sprint(r))
			res = b.failed(brand, working, target, stimulus, fmt.Errorf("panic: %v", r))
			err = nil
		}
	}()

	res, herr := handler(ctx, in)
	if herr != nil {
		span.RecordError(herr)
		b.opts.Logger.Warn("agent.act.error", "agent", b.opts.Name, "target", target.String(), "error", herr.Error())

		return b.failed(brand, working, target, stimulus, herr), nil
	}

	if verr := res.Memory.Validate(); verr != nil {
		return b.failed(brand, working, target, stimulus, fmt.Errorf("handler produced invalid memory: %w", verr)), nil
	}

	res.Log.ID = core.NewID()
	res.Log.Timestamp = now
	res.Log.BrandID = brand.BrandID
	res.Log.AgentName = b.opts.Name
	res.Log.TargetID = target.String()
	if stimulus != nil {
		res.Log.Stimulus = stimulus.Text
	}

	b.opts.Logger.Info("agent.act.completed", "agent", b.opts.Name, "target", target.String(), "action", res.Log.Action)

	return res, nil
}

// ApologyReply is the user-facing reply when a user request fails.
const ApologyReply = "Sorry, I couldn't complete that request right now. Please try again shortly."

func (b *BaseAgent) failed(brand core.BrandDomainMemory, working core.AgentMemory, target core.Target, stimulus *Stimulus, cause error) ActResult {
	res := ActResult{
		Memory: working,
		Log:    b.logEntry(brand, target, stimulus, core.ActionError, cause.Error()),
	}

	if target.Kind == core.TargetUserRequest {
		res.Reply = ApologyReply
	}

	return res
}

func (b *BaseAgent) logEntry(brand core.BrandDomainMemory, target core.Target, stimulus *Stimulus, action, result string) core.AgentLogEntry {
	entry := core.NewLogEntry(b.opts.Clock, brand.BrandID, b.opts.Name, action, result)
	entry.TargetID = target.String()

	if stimulus != nil {
		entry.Stimulus = stimulus.Text
	}

	return entry
}

// IdleResult is returned by runners when Orient finds nothing to do.
func (b *BaseAgent) IdleResult(brand core.BrandDomainMemory, mem core.AgentMemory) ActResult {
	entry := core.NewLogEntry(b.opts.Clock, brand.BrandID, b.opts.Name, core.ActionIdle, "nothing to do")
	return ActResult{Memory: mem, Log: entry}
}

func (b *BaseAgent) toolContext(ctx context.Context, brand core.BrandDomainMemory, stimulus *Stimulus) *core.ToolContext {
	scope := core.Scope{
		BrandID:      brand.BrandID,
		AgentName:    b.opts.Name,
		AgentKind:    b.kind,
		InvocationID: InvocationFromContext(ctx),
	}

	if stimulus != nil {
		scope.ThreadID = stimulus.ThreadID
	}

	return core.NewToolContext(ctx, scope, b.opts.Clock, b.opts.Logger)
}

// ErrNoModel is reported when a user request reaches an agent without a model.
var ErrNoModel = errors.New("agent has no model configured")

// respond routes a user request through the planner with the agent's own
// descriptors followed by the shared tool set.
func (b *BaseAgent) respond(ctx context.Context, in ActInput) (ActResult, error) {
	if in.Stimulus.Empty() {
		return ActResult{}, errors.New("user request without stimulus")
	}

	if b.opts.Model == nil {
		return ActResult{}, ErrNoModel
	}

	registry, err := tool.NewRegistry(append(b.Descriptors(), tool.SharedDescriptors()...), in.Shims)
	if err != nil {
		return ActResult{}, err
	}

	in.Memory.CurrentTaskID = core.NewID()

	out, err := b.planner.Run(ctx, planner.Task{
		UserQuery:          in.Stimulus.Text,
		SystemInstructions: in.Memory.Instructions,
		History:            in.Stimulus.History,
		Tools:              registry,
		Model:              b.opts.Model,
		MaxIterations:      b.opts.MaxIterations,
		Effort:             b.opts.Effort,
		ToolContext:        in.ToolContext,
		OnStepComplete:     b.publishProgress(in),
	})
	if err != nil {
		return ActResult{}, err
	}

	in.Memory.CurrentTaskID = ""

	failed := 0
	for _, s := range out.Steps {
		if s.Failed() {
			failed++
		}
	}

	next := ""
	if out.Truncated {
		next = "continue the request; the tool call limit was reached"
	}

	return ActResult{
		Memory:  in.Memory,
		Reply:   out.FinalResult,
		Effects: out.Effects,
		Steps:   out.Steps,
		Log: core.AgentLogEntry{
			Action:   core.ActionRespond,
			Result:   out.FinalResult,
			NextStep: next,
			Metadata: map[string]any{
				"steps":        len(out.Steps),
				"failed_steps": failed,
				"truncated":    out.Truncated,
				"model_calls":  out.ModelCalls,
			},
		},
	}, nil
}

// publishProgress mirrors each step into a shared context block when the
// write_shared_context shim is injected.
func (b *BaseAgent) publishProgress(in ActInput) planner.StepHook {
	write, ok := in.Shims[tool.WriteSharedContext]
	if !ok || b.opts.ProgressLabel == "" {
		return nil
	}

	return func(ctx context.Context, step planner.Step) error {
		status := "ok"
		if step.Failed() {
			status = "failed: " + step.Error
		}

		_, err := write(in.ToolContext.WithContext(ctx), map[string]any{
			"label": b.opts.ProgressLabel,
			"value": fmt.Sprintf("step %d %s %s", step.Index, step.Tool, status),
		})

		return err
	}
}
