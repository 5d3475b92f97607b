package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/tool"
)

// CheckInventory is the injected tool returning stock levels.
const CheckInventory = "check_inventory"

// OperationsAgent triages operational tickets by severity.
type OperationsAgent struct {
	BaseAgent
	escalate string
}

// OperationsOptions extend Options for the operations agent.
type OperationsOptions struct {
	Options
	// EscalateTo is told about critical tickets.
	EscalateTo string
}

// NewOperationsAgent creates an operations agent.
func NewOperationsAgent(optFns ...func(o *OperationsOptions)) *OperationsAgent {
	opts := OperationsOptions{
		Options: Options{
			Name:          NameOperations,
			Description:   "Triages supply, inventory and fulfilment issues.",
			Instruction:   defaultInstruction("You keep inventory, fulfilment and retail operations running."),
			MaxIterations: 6,
		},
		EscalateTo: NameMarketing,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &OperationsAgent{
		BaseAgent: NewBaseAgent(core.KindOperations, opts.Options, []tool.Descriptor{{
			Name:        CheckInventory,
			Description: "Return on-hand inventory for a SKU.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"sku": map[string]any{"type": "string"}},
				"required":   []string{"sku"},
			},
		}}),
		escalate: opts.EscalateTo,
	}
}

// Orient picks the most severe open ticket, oldest first within a severity.
func (a *OperationsAgent) Orient(_ core.BrandDomainMemory, mem core.AgentMemory, stimulus *Stimulus) *core.Target {
	if !stimulus.Empty() {
		t := core.UserRequest()
		return &t
	}

	if mem.Operations == nil {
		return nil
	}

	var next *core.Ticket
	for i := range mem.Operations.Tickets {
		t := &mem.Operations.Tickets[i]
		if t.Status != core.TicketOpen {
			continue
		}
		if next == nil ||
			t.Severity.Rank() > next.Severity.Rank() ||
			(t.Severity.Rank() == next.Severity.Rank() && t.OpenedAt.Before(next.OpenedAt)) {
			next = t
		}
	}

	if next == nil {
		return nil
	}

	return &core.Target{Kind: core.TargetTicketTriage, ID: next.ID}
}

// Act implements Agent.
func (a *OperationsAgent) Act(ctx context.Context, brand core.BrandDomainMemory, mem core.AgentMemory, target core.Target, shims tool.Shims, stimulus *Stimulus) (ActResult, error) {
	return a.Dispatch(ctx, brand, mem, target, shims, stimulus, map[core.TargetKind]TargetHandler{
		core.TargetTicketTriage: a.triage,
	})
}

func (a *OperationsAgent) triage(_ context.Context, in ActInput) (ActResult, error) {
	for i := range in.Memory.Operations.Tickets {
		t := &in.Memory.Operations.Tickets[i]
		if t.ID != in.Target.ID {
			continue
		}

		if t.Status != core.TicketOpen {
			return ActResult{
				Memory: in.Memory,
				Log:    core.AgentLogEntry{Action: core.ActionIdle, Result: "ticket is " + string(t.Status)},
			}, nil
		}

		t.Status = core.TicketTriaged
		t.Assignee = "ops-queue"
		if t.Severity.Rank() >= core.SeverityHigh.Rank() {
			t.Assignee = "on-call"
		}

		var effects []core.Effect
		if t.Severity == core.SeverityCritical && a.escalate != "" {
			effects = append(effects, core.MessageEffect{
				BrandID: in.Brand.BrandID,
				From:    a.Name(),
				To:      a.escalate,
				Subject: "hold promotions",
				Body:    t.Summary,
			})
		}

		return ActResult{
			Memory:  in.Memory,
			Effects: effects,
			Log: core.AgentLogEntry{
				Action: "triage_ticket",
				Result: fmt.Sprintf("%s ticket %s assigned to %s", t.Severity, t.ID, t.Assignee),
			},
		}, nil
	}

	return ActResult{}, fmt.Errorf("%w: ticket %q", core.ErrNotFound, in.Target.ID)
}
