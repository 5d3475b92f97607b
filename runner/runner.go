package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/brandmesh/agent"
	"github.com/hupe1980/brandmesh/auth"
	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/handoff"
	"github.com/hupe1980/brandmesh/logging"
	"github.com/hupe1980/brandmesh/memory"
	"github.com/hupe1980/brandmesh/planner"
	"github.com/hupe1980/brandmesh/tool"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// MaxConcurrentInvocations limits concurrent agent invocations.
	MaxConcurrentInvocations int
	// ActTimeout bounds a single act call.
	ActTimeout time.Duration
	// Coordinator applies handoff effects. Nil drops them with an error.
	Coordinator *handoff.Coordinator
	// Mailbox delivers message effects and backs the messaging tools.
	Mailbox *memory.Mailbox
	// Shared backs the shared context tools and scope attachment.
	Shared *memory.SharedContext
	// Facts backs save_fact and search_facts.
	Facts memory.FactStore
	// Integrations are agent-specific shims such as scan_competitor.
	Integrations tool.Shims
	Clock        core.Clock
	Logger       logging.Logger
}

// Invocation asks one agent to run once for a brand.
type Invocation struct {
	BrandID  string
	Agent    string
	Stimulus *agent.Stimulus
	ThreadID string
}

// EffectResult reports how one effect was dispatched.
type EffectResult struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`
}

// Report is the outcome of an invocation.
type Report struct {
	InvocationID  string             `json:"invocation_id"`
	Agent         string             `json:"agent"`
	Target        *core.Target       `json:"target,omitempty"`
	Reply         string             `json:"reply,omitempty"`
	Log           core.AgentLogEntry `json:"log"`
	Steps         []planner.Step     `json:"steps,omitempty"`
	Effects       []EffectResult     `json:"effects,omitempty"`
	MemoryVersion int64              `json:"memory_version"`
}

// Idle reports whether orient found nothing to do.
func (r Report) Idle() bool { return r.Target == nil }

// Runner coordinates agent invocations. Public methods are safe for
// concurrent use.
type Runner struct {
	repo   *memory.Repository
	roster *agent.Roster
	opts   Options
	shims  tool.Shims
	sem    *semaphore.Weighted

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(repo *memory.Repository, roster *agent.Roster, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentInvocations: 10,
		ActTimeout:               2 * time.Minute,
		Clock:                    core.SystemClock{},
		Logger:                   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentInvocations < 1 {
		opts.MaxConcurrentInvocations = 1
	}

	shims := tool.SharedShims(tool.SharedDeps{
		Shared:  opts.Shared,
		Mailbox: opts.Mailbox,
		Facts:   opts.Facts,
	}).Merge(opts.Integrations)

	return &Runner{
		repo:       repo,
		roster:     roster,
		opts:       opts,
		shims:      shims,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrentInvocations)),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Invoke runs inv to completion. Errors are returned for unknown agents,
// unreadable or invalid memory and unknown targets; in the last case the log
// entry has already been persisted.
func (r *Runner) Invoke(ctx context.Context, inv Invocation) (Report, error) {
	if inv.BrandID == "" || inv.Agent == "" {
		return Report{}, &core.ValidationError{Field: "invocation", Message: "brand id and agent are required"}
	}

	a, err := r.roster.Get(inv.Agent)
	if err != nil {
		return Report{}, err
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Report{}, err
	}
	defer r.sem.Release(1)

	id := core.NewID()
	ctx, cancel := context.WithCancel(agent.WithInvocation(ctx, id))
	defer cancel()

	r.track(id, cancel)
	defer r.untrack(id)

	logger := r.opts.Logger
	report := Report{InvocationID: id, Agent: a.Name()}

	brand, _, err := r.repo.LoadBrand(ctx, inv.BrandID)
	if err != nil {
		return report, fmt.Errorf("load brand %s: %w", inv.BrandID, err)
	}

	mem, version, err := r.repo.LoadAgent(ctx, inv.BrandID, a.Name(), a.Kind())
	if err != nil {
		return report, fmt.Errorf("load agent %s: %w", a.Name(), err)
	}

	if r.opts.Shared != nil {
		if err := r.opts.Shared.Attach(ctx, inv.BrandID, a.Name()); err != nil {
			logger.Warn("runner.shared.attach_failed", "brand", inv.BrandID, "agent", a.Name(), "error", err.Error())
		}
	}

	mem, err = a.Initialize(brand, mem)
	if err != nil {
		return report, fmt.Errorf("initialize %s: %w", a.Name(), err)
	}

	stimulus := withThread(inv.Stimulus, inv.ThreadID)

	var (
		res    agent.ActResult
		actErr error
	)

	target := a.Orient(brand, mem, stimulus)
	if target == nil {
		res = agent.ActResult{
			Memory: mem,
			Log:    core.NewLogEntry(r.opts.Clock, brand.BrandID, a.Name(), core.ActionIdle, "nothing to do"),
		}
	} else {
		report.Target = target

		actCtx, actCancel := context.WithTimeout(ctx, r.opts.ActTimeout)
		res, actErr = a.Act(actCtx, brand, mem, *target, r.shims, stimulus)
		actCancel()
	}

	report.Reply = res.Reply
	report.Steps = res.Steps
	report.Log = res.Log

	newVersion, err := r.persist(ctx, res.Memory, version)
	if err != nil {
		logger.Error("runner.memory.save_failed", "brand", brand.BrandID, "agent", a.Name(), "error", err.Error())
	}

	report.MemoryVersion = newVersion

	if lerr := r.repo.AppendLog(ctx, res.Log); lerr != nil {
		logger.Error("runner.log.append_failed", "brand", brand.BrandID, "agent", a.Name(), "error", lerr.Error())
		err = errors.Join(err, lerr)
	}

	if actErr != nil {
		return report, actErr
	}

	report.Effects = r.dispatch(ctx, brand, a.Name(), res.Effects)

	logger.Info("runner.invocation.completed",
		"invocation", id,
		"brand", brand.BrandID,
		"agent", a.Name(),
		"action", res.Log.Action,
		"effects", len(report.Effects),
	)

	return report, err
}

// persist writes mem guarded by version. When another writer delivered an
// alert or review item meanwhile, those inbound entries are merged into mem
// and the write is retried against the fresh document.
func (r *Runner) persist(ctx context.Context, mem core.AgentMemory, version int64) (int64, error) {
	v, err := r.repo.SaveAgent(ctx, mem, version)
	if err == nil || !errors.Is(err, core.ErrConflict) {
		return v, err
	}

	r.opts.Logger.Debug("runner.memory.conflict", "brand", mem.BrandID, "agent", mem.AgentName)

	saved, err := r.repo.UpdateAgent(ctx, mem.BrandID, mem.AgentName, mem.Kind, func(fresh *core.AgentMemory) error {
		*fresh = mergeInbound(*fresh, mem)
		return nil
	})
	if err != nil {
		return 0, err
	}

	_, v, err = r.repo.LoadAgent(ctx, saved.BrandID, saved.AgentName, saved.Kind)

	return v, err
}

// mergeInbound returns ours plus the inbound entries other writers appended
// to fresh.
func mergeInbound(fresh, ours core.AgentMemory) core.AgentMemory {
	out := ours.Clone()

	switch {
	case fresh.Marketing != nil && out.Marketing != nil:
		have := make(map[string]bool, len(out.Marketing.Alerts))
		for _, a := range out.Marketing.Alerts {
			have[a.ID] = true
		}
		for _, a := range fresh.Marketing.Alerts {
			if !have[a.ID] {
				out.Marketing.Alerts = append(out.Marketing.Alerts, a)
			}
		}
	case fresh.Compliance != nil && out.Compliance != nil:
		have := make(map[string]bool, len(out.Compliance.ReviewQueue))
		for _, it := range out.Compliance.ReviewQueue {
			have[it.ID] = true
		}
		for _, it := range fresh.Compliance.ReviewQueue {
			if !have[it.ID] {
				out.Compliance.ReviewQueue = append(out.Compliance.ReviewQueue, it)
			}
		}
	}

	return out
}

func withThread(s *agent.Stimulus, threadID string) *agent.Stimulus {
	if s == nil || threadID == "" || s.ThreadID != "" {
		return s
	}

	cp := *s
	cp.ThreadID = threadID

	return &cp
}

// Agent returns a registered agent by name.
func (r *Runner) Agent(name string) (agent.Agent, error) {
	return r.roster.Get(name)
}

// Cancel cancels a running invocation by ID.
func (r *Runner) Cancel(invocationID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[invocationID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("invocation %s not found", invocationID)
	}

	cancel()

	return nil
}

// Active returns the IDs of running invocations.
func (r *Runner) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.activeRuns[id] = cancel
	r.mu.Unlock()
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	delete(r.activeRuns, id)
	r.mu.Unlock()
}

// principalFor returns ctx with the acting agent as principal unless the
// caller already authenticated.
func principalFor(ctx context.Context, brandID, agentName string) context.Context {
	if _, err := auth.FromContext(ctx); err == nil {
		return ctx
	}

	return auth.WithPrincipal(ctx, auth.Principal{Subject: agentName, BrandID: brandID, Role: auth.RoleAgent})
}
