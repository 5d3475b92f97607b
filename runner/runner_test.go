package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/agent"
	"github.com/hupe1980/brandmesh/auth"
	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/handoff"
	"github.com/hupe1980/brandmesh/internal/testutil"
	"github.com/hupe1980/brandmesh/memory"
	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/runner"
	"github.com/hupe1980/brandmesh/tool"
)

type fixture struct {
	clock   *testutil.FakeClock
	repo    *memory.Repository
	mailbox *memory.Mailbox
	coord   *handoff.Coordinator
	runner  *runner.Runner
}

func newFixture(t *testing.T, brand core.BrandDomainMemory, m model.Model, integrations tool.Shims) *fixture {
	t.Helper()

	clock := testutil.NewFakeClock(testutil.Epoch)
	store := docstore.NewInMemoryStore(clock)
	repo := memory.NewRepository(store, func(o *memory.RepositoryOptions) {
		o.Clock = clock
		o.RetryDelay = time.Millisecond
	})

	_, err := repo.SaveBrand(context.Background(), brand)
	require.NoError(t, err)

	roster := agent.NewRoster(
		agent.NewIntelAgent(func(o *agent.IntelOptions) { o.Clock = clock; o.Model = m }),
		agent.NewMarketingAgent(func(o *agent.MarketingOptions) { o.Clock = clock }),
		agent.NewComplianceAgent(func(o *agent.Options) { o.Clock = clock }),
		agent.NewOperationsAgent(func(o *agent.OperationsOptions) { o.Clock = clock }),
	)

	f := &fixture{
		clock:   clock,
		repo:    repo,
		mailbox: memory.NewMailbox(store, clock),
		coord:   handoff.New(store, func(o *handoff.Options) { o.Clock = clock }),
	}

	f.runner = runner.New(repo, roster, func(o *runner.Options) {
		o.Clock = clock
		o.Mailbox = f.mailbox
		o.Shared = memory.NewSharedContext(store, clock)
		o.Facts = memory.NewInMemoryFactStore(clock)
		o.Coordinator = f.coord
		o.Integrations = integrations
	})

	return f
}

func TestIdleInvocationPersistsLog(t *testing.T) {
	f := newFixture(t, testutil.NewBrandBuilder("b1").Build(), nil, nil)
	ctx := context.Background()

	rep, err := f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameIntel})
	require.NoError(t, err)
	assert.True(t, rep.Idle())
	assert.Equal(t, core.ActionIdle, rep.Log.Action)
	assert.Equal(t, int64(1), rep.MemoryVersion)

	logs, err := f.repo.ListLogs(ctx, "b1", agent.NameIntel)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, core.ActionIdle, logs[0].Action)

	mem, _, err := f.repo.LoadAgent(ctx, "b1", agent.NameIntel, core.KindCompetitiveIntel)
	require.NoError(t, err)
	assert.Equal(t, "brand:b1", mem.SharedScope)
	assert.NotEmpty(t, mem.Instructions)

	assert.Empty(t, f.runner.Active())
}

func TestInvokeValidation(t *testing.T) {
	f := newFixture(t, testutil.NewBrandBuilder("b1").Build(), nil, nil)

	_, err := f.runner.Invoke(context.Background(), runner.Invocation{BrandID: "b1", Agent: "nobody"})
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.runner.Invoke(context.Background(), runner.Invocation{Agent: agent.NameIntel})
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = f.runner.Invoke(context.Background(), runner.Invocation{BrandID: "missing", Agent: agent.NameIntel})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestAlertToReviewFlow(t *testing.T) {
	f := newFixture(t, testutil.NewBrandBuilder("b1").Prohibit("cheapest").Build(), nil, nil)
	ctx := context.Background()

	err := f.runner.Alert(ctx, core.AlertEffect{
		BrandID: "b1",
		ToAgent: agent.NameMarketing,
		Alert:   core.PricingAlert{ID: "al1", Product: "OG Kush", OurPrice: 45, CompetitorPrice: 38, ReceivedAt: testutil.Epoch},
	})
	require.NoError(t, err)

	rep, err := f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameMarketing})
	require.NoError(t, err)
	require.NotNil(t, rep.Target)
	assert.Equal(t, "pricing_alert:al1", rep.Target.String())
	assert.Equal(t, "draft_campaign", rep.Log.Action)
	require.Len(t, rep.Effects, 1)
	assert.Equal(t, "review", rep.Effects[0].Kind)
	assert.Empty(t, rep.Effects[0].Error)

	rep, err = f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameCompliance})
	require.NoError(t, err)
	assert.Equal(t, "review_content", rep.Log.Action)
	assert.Equal(t, "approved", rep.Log.Result)

	mem, _, err := f.repo.LoadAgent(ctx, "b1", agent.NameCompliance, core.KindCompliance)
	require.NoError(t, err)
	require.Len(t, mem.Compliance.ReviewQueue, 1)
	assert.Equal(t, core.ReviewApproved, mem.Compliance.ReviewQueue[0].Status)

	rep, err = f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameMarketing})
	require.NoError(t, err)
	assert.True(t, rep.Idle())
}

func TestAlertRejectedByWrongRecipient(t *testing.T) {
	f := newFixture(t, testutil.NewBrandBuilder("b1").Build(), nil, nil)

	err := f.runner.Alert(context.Background(), core.AlertEffect{
		BrandID: "b1",
		ToAgent: agent.NameOperations,
		Alert:   core.PricingAlert{ID: "al1", Product: "x"},
	})
	require.Error(t, err)
}

func TestUserRequestHandsOffThread(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallResponse(core.FunctionCall{ID: "c1", Name: tool.HandoffToAgent, Arguments: `{"to_agent":"marketing","reason":"campaign question"}`}),
		model.TextResponse("Marketing will take it from here."),
	)

	f := newFixture(t, testutil.NewBrandBuilder("b1").Build(), m, nil)
	ctx := context.Background()

	_, err := f.coord.CreateThread(ctx, "b1", "th1", agent.NameIntel)
	require.NoError(t, err)

	rep, err := f.runner.Invoke(ctx, runner.Invocation{
		BrandID:  "b1",
		Agent:    agent.NameIntel,
		ThreadID: "th1",
		Stimulus: &agent.Stimulus{Text: "Can we run a promo?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Marketing will take it from here.", rep.Reply)
	require.Len(t, rep.Effects, 1)
	assert.Equal(t, "handoff", rep.Effects[0].Kind)
	assert.Empty(t, rep.Effects[0].Error)

	hist := f.coord.GetHandoffHistory(auth.WithPrincipal(ctx, auth.Principal{Subject: "op", BrandID: "b1", Role: auth.RoleOperator}), "th1")
	require.True(t, hist.Success)
	require.Len(t, hist.Handoffs, 1)
	assert.Equal(t, agent.NameMarketing, hist.Handoffs[0].ToAgent)
	assert.Equal(t, agent.NameIntel, hist.Handoffs[0].FromAgent)
}

func TestMessageEffectsHonourRateLimit(t *testing.T) {
	f := newFixture(t, testutil.NewBrandBuilder("b1").MessagesPerHour(1).Build(), nil, nil)
	ctx := context.Background()

	_, err := f.repo.UpdateAgent(ctx, "b1", agent.NameOperations, core.KindOperations, func(m *core.AgentMemory) error {
		m.Operations.Tickets = []core.Ticket{
			{ID: "t1", Summary: "recall lot 7", Severity: core.SeverityCritical, Status: core.TicketOpen, OpenedAt: testutil.Epoch.Add(-time.Hour)},
			{ID: "t2", Summary: "recall lot 8", Severity: core.SeverityCritical, Status: core.TicketOpen, OpenedAt: testutil.Epoch},
		}
		return nil
	})
	require.NoError(t, err)

	rep, err := f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameOperations})
	require.NoError(t, err)
	require.Len(t, rep.Effects, 1)
	assert.Empty(t, rep.Effects[0].Error)

	rep, err = f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameOperations})
	require.NoError(t, err)
	require.Len(t, rep.Effects, 1)
	assert.Contains(t, rep.Effects[0].Error, "rate limit")

	inbox, err := f.mailbox.Inbox(ctx, "b1", agent.NameMarketing)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "recall lot 7", inbox[0].Body)
}

func TestIntegrationShimsReachAgents(t *testing.T) {
	scans := 0
	f := newFixture(t, testutil.NewBrandBuilder("b1").Build(), nil, tool.Shims{
		agent.ScanCompetitor: func(_ *core.ToolContext, _ map[string]any) (tool.Result, error) {
			scans++
			return tool.Output(`[{"name":"Gummies","price":18}]`), nil
		},
	})
	ctx := context.Background()

	_, err := f.repo.UpdateAgent(ctx, "b1", agent.NameIntel, core.KindCompetitiveIntel, func(m *core.AgentMemory) error {
		m.Intel.Watchlist = []core.Competitor{{ID: "c1", Name: "Rival"}}
		return nil
	})
	require.NoError(t, err)

	rep, err := f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameIntel})
	require.NoError(t, err)
	assert.Equal(t, "refresh_competitor", rep.Log.Action)
	assert.Equal(t, 1, scans)

	// Fresh within seven days: nothing to do.
	f.clock.Advance(24 * time.Hour)
	rep, err = f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameIntel})
	require.NoError(t, err)
	assert.True(t, rep.Idle())

	f.clock.Advance(7 * 24 * time.Hour)
	rep, err = f.runner.Invoke(ctx, runner.Invocation{BrandID: "b1", Agent: agent.NameIntel})
	require.NoError(t, err)
	assert.Equal(t, "refresh_competitor", rep.Log.Action)
	assert.Equal(t, 2, scans)

	logs, err := f.repo.ListLogs(ctx, "b1", agent.NameIntel)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}
