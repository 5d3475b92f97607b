package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/tool"
)

// LookupRegulation is the injected tool returning jurisdiction rules.
const LookupRegulation = "lookup_regulation"

// ComplianceAgent reviews queued content against the brand's constraints.
type ComplianceAgent struct {
	BaseAgent
}

// NewComplianceAgent creates a compliance agent.
func NewComplianceAgent(optFns ...func(o *Options)) *ComplianceAgent {
	opts := Options{
		Name:          NameCompliance,
		Description:   "Reviews content for regulatory and brand compliance.",
		Instruction:   defaultInstruction("You review marketing content for cannabis advertising compliance."),
		MaxIterations: 6,
	}

	return &ComplianceAgent{
		BaseAgent: NewBaseAgent(core.KindCompliance, opts, []tool.Descriptor{{
			Name:        LookupRegulation,
			Description: "Look up advertising rules for a jurisdiction and topic.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"jurisdiction": map[string]any{"type": "string"},
					"topic":        map[string]any{"type": "string"},
				},
				"required": []string{"jurisdiction"},
			},
		}}, optFns...),
	}
}

// Orient picks the oldest pending review item.
func (a *ComplianceAgent) Orient(_ core.BrandDomainMemory, mem core.AgentMemory, stimulus *Stimulus) *core.Target {
	if !stimulus.Empty() {
		t := core.UserRequest()
		return &t
	}

	if mem.Compliance == nil {
		return nil
	}

	var oldest *core.ReviewItem
	for i := range mem.Compliance.ReviewQueue {
		it := &mem.Compliance.ReviewQueue[i]
		if it.Status != core.ReviewPending {
			continue
		}
		if oldest == nil || it.SubmittedAt.Before(oldest.SubmittedAt) {
			oldest = it
		}
	}

	if oldest == nil {
		return nil
	}

	return &core.Target{Kind: core.TargetContentReview, ID: oldest.ID}
}

// Act implements Agent.
func (a *ComplianceAgent) Act(ctx context.Context, brand core.BrandDomainMemory, mem core.AgentMemory, target core.Target, shims tool.Shims, stimulus *Stimulus) (ActResult, error) {
	return a.Dispatch(ctx, brand, mem, target, shims, stimulus, map[core.TargetKind]TargetHandler{
		core.TargetContentReview: a.reviewContent,
	})
}

func (a *ComplianceAgent) reviewContent(_ context.Context, in ActInput) (ActResult, error) {
	for i := range in.Memory.Compliance.ReviewQueue {
		it := &in.Memory.Compliance.ReviewQueue[i]
		if it.ID != in.Target.ID {
			continue
		}

		if it.Status != core.ReviewPending {
			return ActResult{
				Memory: in.Memory,
				Log:    core.AgentLogEntry{Action: core.ActionIdle, Result: "already " + string(it.Status)},
			}, nil
		}

		it.Findings = Check(in.Brand.Constraints, it.Content, it.Jurisdiction)
		it.Status = core.ReviewApproved
		if len(it.Findings) > 0 {
			it.Status = core.ReviewRejected
		}

		reviewed := in.Now
		it.ReviewedAt = &reviewed

		result := "approved"
		if it.Status == core.ReviewRejected {
			result = "rejected: " + strings.Join(it.Findings, "; ")
		}

		return ActResult{
			Memory: in.Memory,
			Log: core.AgentLogEntry{
				Action:   "review_content",
				Result:   result,
				Metadata: map[string]any{"item": it.ID, "findings": len(it.Findings)},
			},
		}, nil
	}

	return ActResult{}, fmt.Errorf("%w: review item %q", core.ErrNotFound, in.Target.ID)
}

// Check returns the compliance findings for content published in
// jurisdiction. An empty jurisdiction skips the jurisdiction rule.
func Check(c core.Constraints, content, jurisdiction string) []string {
	var findings []string

	for _, p := range c.FindProhibited(content) {
		findings = append(findings, fmt.Sprintf("prohibited phrase %q", p))
	}

	if jurisdiction != "" && !c.AllowsJurisdiction(jurisdiction) {
		findings = append(findings, fmt.Sprintf("jurisdiction %s is not allowed", jurisdiction))
	}

	return findings
}
