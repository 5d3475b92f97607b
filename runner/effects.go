package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/handoff"
	"github.com/hupe1980/brandmesh/memory"
)

// ErrNoCoordinator is reported for handoff effects when no coordinator is set.
var ErrNoCoordinator = errors.New("no handoff coordinator configured")

// Dispatch delivers effects raised outside an invocation, for example by a
// pipeline run, on behalf of from.
func (r *Runner) Dispatch(ctx context.Context, brandID, from string, effects ...core.Effect) ([]EffectResult, error) {
	brand, _, err := r.repo.LoadBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}

	return r.dispatch(ctx, brand, from, effects), nil
}

// Alert delivers a single alert effect.
func (r *Runner) Alert(ctx context.Context, e core.AlertEffect) error {
	results, err := r.Dispatch(ctx, e.BrandID, "pipeline", e)
	if err != nil {
		return err
	}

	if len(results) == 1 && results[0].Error != "" {
		return errors.New(results[0].Error)
	}

	return nil
}

func (r *Runner) dispatch(ctx context.Context, brand core.BrandDomainMemory, from string, effects []core.Effect) []EffectResult {
	if len(effects) == 0 {
		return nil
	}

	out := make([]EffectResult, 0, len(effects))

	for _, e := range effects {
		res := EffectResult{Kind: e.EffectKind()}

		var err error

		switch eff := e.(type) {
		case core.HandoffEffect:
			res.Target = eff.ThreadID
			err = r.handoff(ctx, brand.BrandID, from, eff)
		case core.MessageEffect:
			res.Target = eff.To
			err = r.message(ctx, brand, from, eff)
		case core.AlertEffect:
			res.Target = eff.ToAgent
			err = r.deliver(ctx, brand.BrandID, eff.ToAgent, func(m *core.AgentMemory) error {
				if m.Marketing == nil {
					return &core.ValidationError{Field: "alert", Message: fmt.Sprintf("%s does not accept pricing alerts", eff.ToAgent)}
				}
				for _, existing := range m.Marketing.Alerts {
					if existing.ID == eff.Alert.ID {
						return nil
					}
				}
				m.Marketing.Alerts = append(m.Marketing.Alerts, eff.Alert)
				return nil
			})
		case core.ReviewEffect:
			res.Target = eff.ToAgent
			err = r.deliver(ctx, brand.BrandID, eff.ToAgent, func(m *core.AgentMemory) error {
				if m.Compliance == nil {
					return &core.ValidationError{Field: "review", Message: fmt.Sprintf("%s does not review content", eff.ToAgent)}
				}
				for _, existing := range m.Compliance.ReviewQueue {
					if existing.ID == eff.Item.ID {
						return nil
					}
				}
				m.Compliance.ReviewQueue = append(m.Compliance.ReviewQueue, eff.Item)
				return nil
			})
		default:
			err = fmt.Errorf("unsupported effect %s", e.EffectKind())
		}

		if err != nil {
			res.Error = err.Error()
			r.opts.Logger.Warn("runner.effect.failed", "brand", brand.BrandID, "kind", res.Kind, "target", res.Target, "error", err.Error())
		}

		out = append(out, res)
	}

	return out
}

func (r *Runner) handoff(ctx context.Context, brandID, from string, e core.HandoffEffect) error {
	if r.opts.Coordinator == nil {
		return ErrNoCoordinator
	}

	res := r.opts.Coordinator.HandoffToAgent(principalFor(ctx, brandID, from), handoff.Input{
		ThreadID:  e.ThreadID,
		ToAgent:   e.ToAgent,
		Reason:    e.Reason,
		MessageID: e.MessageID,
	})
	if !res.Success {
		return errors.New(res.Error)
	}

	return nil
}

func (r *Runner) message(ctx context.Context, brand core.BrandDomainMemory, from string, e core.MessageEffect) error {
	if r.opts.Mailbox == nil {
		return errors.New("no mailbox configured")
	}

	if e.From == "" {
		e.From = from
	}

	_, err := r.opts.Mailbox.Send(ctx, memory.Message{
		BrandID: brand.BrandID,
		From:    e.From,
		To:      e.To,
		Subject: e.Subject,
		Body:    e.Body,
	}, brand.Constraints.MaxMessagesPerHour)

	return err
}

// deliver merges an inbound entry into the memory of agent name.
func (r *Runner) deliver(ctx context.Context, brandID, name string, fn func(m *core.AgentMemory) error) error {
	recipient, err := r.roster.Get(name)
	if err != nil {
		return err
	}

	_, err = r.repo.UpdateAgent(ctx, brandID, name, recipient.Kind(), fn)

	return err
}
