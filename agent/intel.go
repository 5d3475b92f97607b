package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/tool"
)

// ScanCompetitor is the injected tool that fetches a competitor menu.
const ScanCompetitor = "scan_competitor"

// DefaultStaleAfter is how long a competitor scan stays fresh.
const DefaultStaleAfter = 7 * 24 * time.Hour

// priceDropThreshold opens a gap when a competitor cuts a price by at least
// this fraction between two snapshots.
const priceDropThreshold = 0.10

// IntelAgent watches competitors: it refreshes stale menus and reviews open
// market gaps.
type IntelAgent struct {
	BaseAgent
	staleAfter time.Duration
	notify     string
}

// IntelOptions extend Options for the intel agent.
type IntelOptions struct {
	Options
	StaleAfter time.Duration
	// NotifyAgent receives gap summaries.
	NotifyAgent string
}

// NewIntelAgent creates a competitive-intel agent.
func NewIntelAgent(optFns ...func(o *IntelOptions)) *IntelAgent {
	opts := IntelOptions{
		Options: Options{
			Name:          NameIntel,
			Description:   "Tracks competitor menus and pricing gaps.",
			Instruction:   defaultInstruction("You track competitor menus, prices and market gaps."),
			MaxIterations: 8,
			ProgressLabel: "intel_progress",
		},
		StaleAfter:  DefaultStaleAfter,
		NotifyAgent: NameMarketing,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &IntelAgent{
		BaseAgent:  NewBaseAgent(core.KindCompetitiveIntel, opts.Options, intelDescriptors()),
		staleAfter: opts.StaleAfter,
		notify:     opts.NotifyAgent,
	}
}

func intelDescriptors() []tool.Descriptor {
	return []tool.Descriptor{{
		Name:        ScanCompetitor,
		Description: "Fetch the current menu (product names, categories, prices) of a watched competitor.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"competitor_id": map[string]any{"type": "string"},
				"url":           map[string]any{"type": "string"},
			},
			"required": []string{"competitor_id"},
		},
	}}
}

// Orient picks the stalest competitor, then the oldest open gap.
func (a *IntelAgent) Orient(_ core.BrandDomainMemory, mem core.AgentMemory, stimulus *Stimulus) *core.Target {
	if !stimulus.Empty() {
		t := core.UserRequest()
		return &t
	}

	if mem.Intel == nil {
		return nil
	}

	now := a.Now()

	var stalest *core.Competitor
	for i := range mem.Intel.Watchlist {
		c := &mem.Intel.Watchlist[i]
		if c.LastScannedAt != nil && now.Sub(*c.LastScannedAt) < a.staleAfter {
			continue
		}
		if stalest == nil || scannedBefore(c, stalest) {
			stalest = c
		}
	}

	if stalest != nil {
		return &core.Target{Kind: core.TargetCompetitorRefresh, ID: stalest.ID}
	}

	var oldest *core.Gap
	for i := range mem.Intel.OpenGaps {
		g := &mem.Intel.OpenGaps[i]
		if g.Status != core.GapOpen {
			continue
		}
		if oldest == nil || g.OpenedAt.Before(oldest.OpenedAt) {
			oldest = g
		}
	}

	if oldest != nil {
		return &core.Target{Kind: core.TargetGapReview, ID: oldest.ID}
	}

	return nil
}

// scannedBefore orders never-scanned competitors first.
func scannedBefore(a, b *core.Competitor) bool {
	switch {
	case a.LastScannedAt == nil:
		return b.LastScannedAt != nil
	case b.LastScannedAt == nil:
		return false
	default:
		return a.LastScannedAt.Before(*b.LastScannedAt)
	}
}

// Act implements Agent.
func (a *IntelAgent) Act(ctx context.Context, brand core.BrandDomainMemory, mem core.AgentMemory, target core.Target, shims tool.Shims, stimulus *Stimulus) (ActResult, error) {
	return a.Dispatch(ctx, brand, mem, target, shims, stimulus, map[core.TargetKind]TargetHandler{
		core.TargetCompetitorRefresh: a.refreshCompetitor,
		core.TargetGapReview:         a.reviewGap,
	})
}

func (a *IntelAgent) refreshCompetitor(_ context.Context, in ActInput) (ActResult, error) {
	intel := in.Memory.Intel

	idx := -1
	for i, c := range intel.Watchlist {
		if c.ID == in.Target.ID {
			idx = i
			break
		}
	}

	if idx < 0 {
		return ActResult{}, fmt.Errorf("%w: competitor %q", core.ErrNotFound, in.Target.ID)
	}

	competitor := intel.Watchlist[idx]

	scan, ok := in.Shims[ScanCompetitor]
	if !ok {
		return ActResult{}, fmt.Errorf("%s is not available", ScanCompetitor)
	}

	res, err := scan(in.ToolContext, map[string]any{"competitor_id": competitor.ID, "url": competitor.URL})
	if err != nil {
		return ActResult{}, fmt.Errorf("scan %s: %w", competitor.ID, err)
	}

	items, err := decodeMenu(res.Output)
	if err != nil {
		return ActResult{}, fmt.Errorf("scan %s: %w", competitor.ID, err)
	}

	previous, hadPrevious := intel.LatestSnapshot(competitor.ID)

	intel.AddSnapshot(core.MenuSnapshot{CompetitorID: competitor.ID, CapturedAt: in.Now, Items: items})
	scanned := in.Now
	intel.Watchlist[idx].LastScannedAt = &scanned

	opened := 0
	if hadPrevious {
		for _, gap := range priceDrops(competitor, previous.Items, items, in.Now) {
			intel.OpenGaps = append(intel.OpenGaps, gap)
			opened++
		}
	}

	return ActResult{
		Memory:  in.Memory,
		Effects: res.Effects,
		Log: core.AgentLogEntry{
			Action:   "refresh_competitor",
			Result:   fmt.Sprintf("captured %d items from %s", len(items), competitor.Name),
			Metadata: map[string]any{"items": len(items), "gaps_opened": opened},
		},
	}, nil
}

// decodeMenu accepts whatever JSON-shaped value a scan shim returns.
func decodeMenu(out any) ([]core.MenuItem, error) {
	if items, ok := out.([]core.MenuItem); ok {
		return items, nil
	}

	var raw []byte
	if s, ok := out.(string); ok {
		raw = []byte(s)
	} else {
		b, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	var items []core.MenuItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unexpected menu format: %w", err)
	}

	return items, nil
}

func priceDrops(c core.Competitor, before, after []core.MenuItem, now time.Time) []core.Gap {
	old := make(map[string]float64, len(before))
	for _, it := range before {
		old[it.Name] = it.Price
	}

	var gaps []core.Gap
	for _, it := range after {
		prev, ok := old[it.Name]
		if !ok || prev <= 0 || it.Price >= prev {
			continue
		}
		if (prev-it.Price)/prev < priceDropThreshold {
			continue
		}

		gaps = append(gaps, core.Gap{
			ID:           core.NewID(),
			Description:  fmt.Sprintf("%s cut %s from %.2f to %.2f", c.Name, it.Name, prev, it.Price),
			CompetitorID: c.ID,
			Status:       core.GapOpen,
			OpenedAt:     now,
		})
	}

	return gaps
}

func (a *IntelAgent) reviewGap(_ context.Context, in ActInput) (ActResult, error) {
	for i := range in.Memory.Intel.OpenGaps {
		gap := &in.Memory.Intel.OpenGaps[i]
		if gap.ID != in.Target.ID {
			continue
		}

		if gap.Status != core.GapOpen {
			return ActResult{
				Memory: in.Memory,
				Log:    core.AgentLogEntry{Action: core.ActionIdle, Result: "gap already reviewed"},
			}, nil
		}

		gap.Status = core.GapReviewed
		gap.Notes = "forwarded to " + a.notify

		var effects []core.Effect
		if a.notify != "" {
			effects = append(effects, core.MessageEffect{
				BrandID: in.Brand.BrandID,
				From:    a.Name(),
				To:      a.notify,
				Subject: "market gap",
				Body:    gap.Description,
			})
		}

		return ActResult{
			Memory:  in.Memory,
			Effects: effects,
			Log: core.AgentLogEntry{
				Action:   "review_gap",
				Result:   gap.Description,
				NextStep: "await response from " + a.notify,
			},
		}, nil
	}

	return ActResult{}, fmt.Errorf("%w: gap %q", core.ErrNotFound, in.Target.ID)
}
