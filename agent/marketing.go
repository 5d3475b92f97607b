package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/tool"
)

// SchedulePost is the injected tool that queues a post on a channel.
const SchedulePost = "schedule_post"

// MarketingAgent turns pricing alerts into draft campaigns, sends drafts to
// compliance and launches scheduled campaigns once they are due.
type MarketingAgent struct {
	BaseAgent
	reviewer string
}

// MarketingOptions extend Options for the marketing agent.
type MarketingOptions struct {
	Options
	// ReviewAgent receives drafted copy for review. Empty skips review.
	ReviewAgent string
}

// NewMarketingAgent creates a marketing agent.
func NewMarketingAgent(optFns ...func(o *MarketingOptions)) *MarketingAgent {
	opts := MarketingOptions{
		Options: Options{
			Name:          NameMarketing,
			Description:   "Plans and launches campaigns.",
			Instruction:   defaultInstruction("You plan campaigns and respond to competitor pricing moves."),
			MaxIterations: 8,
			ProgressLabel: "marketing_progress",
		},
		ReviewAgent: NameCompliance,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &MarketingAgent{
		BaseAgent: NewBaseAgent(core.KindMarketing, opts.Options, marketingDescriptors()),
		reviewer:  opts.ReviewAgent,
	}
}

func marketingDescriptors() []tool.Descriptor {
	return []tool.Descriptor{{
		Name:        SchedulePost,
		Description: "Queue a social or email post for publication.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"channel": map[string]any{"type": "string", "enum": []string{"email", "sms", "instagram", "web"}},
				"copy":    map[string]any{"type": "string"},
				"at":      map[string]any{"type": "string", "description": "RFC3339 publish time"},
			},
			"required": []string{"channel", "copy"},
		},
	}}
}

// Orient handles pricing alerts first, then due scheduled campaigns.
func (a *MarketingAgent) Orient(_ core.BrandDomainMemory, mem core.AgentMemory, stimulus *Stimulus) *core.Target {
	if !stimulus.Empty() {
		t := core.UserRequest()
		return &t
	}

	if mem.Marketing == nil {
		return nil
	}

	for _, al := range mem.Marketing.Alerts {
		if !al.Handled {
			return &core.Target{Kind: core.TargetPricingAlert, ID: al.ID}
		}
	}

	now := a.Now()
	for _, c := range mem.Marketing.Campaigns {
		if c.Status == core.CampaignScheduled && c.StartsAt != nil && !c.StartsAt.After(now) {
			return &core.Target{Kind: core.TargetCampaignReview, ID: c.ID}
		}
	}

	return nil
}

// Act implements Agent.
func (a *MarketingAgent) Act(ctx context.Context, brand core.BrandDomainMemory, mem core.AgentMemory, target core.Target, shims tool.Shims, stimulus *Stimulus) (ActResult, error) {
	return a.Dispatch(ctx, brand, mem, target, shims, stimulus, map[core.TargetKind]TargetHandler{
		core.TargetPricingAlert:   a.handleAlert,
		core.TargetCampaignReview: a.launchCampaign,
	})
}

func (a *MarketingAgent) handleAlert(_ context.Context, in ActInput) (ActResult, error) {
	mkt := in.Memory.Marketing

	var alert *core.PricingAlert
	for i := range mkt.Alerts {
		if mkt.Alerts[i].ID == in.Target.ID {
			alert = &mkt.Alerts[i]
			break
		}
	}

	if alert == nil {
		return ActResult{}, fmt.Errorf("%w: alert %q", core.ErrNotFound, in.Target.ID)
	}

	alert.Handled = true

	copyText := draftCopy(in.Brand, *alert)
	campaign := core.Campaign{
		ID:      core.NewID(),
		Name:    "Price response: " + alert.Product,
		Channel: "email",
		Status:  core.CampaignDraft,
		Copy:    copyText,
		Notes:   fmt.Sprintf("alert %s", alert.ID),
	}

	if hits := in.Brand.Constraints.FindProhibited(copyText); len(hits) > 0 {
		campaign.Notes += "; prohibited phrases: " + strings.Join(hits, ", ")
	}

	mkt.Campaigns = append(mkt.Campaigns, campaign)

	var effects []core.Effect
	if a.reviewer != "" {
		effects = append(effects, core.ReviewEffect{
			BrandID: in.Brand.BrandID,
			ToAgent: a.reviewer,
			Item: core.ReviewItem{
				ID:          campaign.ID,
				Content:     copyText,
				Status:      core.ReviewPending,
				SubmittedAt: in.Now,
			},
		})
	}

	return ActResult{
		Memory:  in.Memory,
		Effects: effects,
		Log: core.AgentLogEntry{
			Action:   "draft_campaign",
			Result:   campaign.Name,
			NextStep: "compliance review of " + campaign.ID,
		},
	}, nil
}

// draftCopy writes deterministic campaign copy for an alert.
func draftCopy(brand core.BrandDomainMemory, al core.PricingAlert) string {
	name := brand.Profile.Name
	if name == "" {
		name = brand.BrandID
	}

	return fmt.Sprintf("%s %s: quality you know, now at a price that matches the market. Limited time.", name, al.Product)
}

func (a *MarketingAgent) launchCampaign(_ context.Context, in ActInput) (ActResult, error) {
	for i := range in.Memory.Marketing.Campaigns {
		c := &in.Memory.Marketing.Campaigns[i]
		if c.ID != in.Target.ID {
			continue
		}

		if c.Status != core.CampaignScheduled {
			return ActResult{
				Memory: in.Memory,
				Log:    core.AgentLogEntry{Action: core.ActionIdle, Result: fmt.Sprintf("campaign is %s", c.Status)},
			}, nil
		}

		c.Status = core.CampaignLive

		result := fmt.Sprintf("%s is live", c.Name)

		if post, ok := in.Shims[SchedulePost]; ok && c.Channel != "" {
			res, err := post(in.ToolContext, map[string]any{"channel": c.Channel, "copy": c.Copy})
			if err != nil {
				c.Notes = "publish failed: " + err.Error()
			} else {
				result += "; " + tool.Render(res.Output)
			}
		}

		return ActResult{
			Memory: in.Memory,
			Log:    core.AgentLogEntry{Action: "launch_campaign", Result: result},
		}, nil
	}

	return ActResult{}, fmt.Errorf("%w: campaign %q", core.ErrNotFound, in.Target.ID)
}
