package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/internal/testutil"
	"github.com/hupe1980/brandmesh/logging"
	"github.com/hupe1980/brandmesh/memory"
)

func newSharedRegistry(t *testing.T) (*Registry, SharedDeps) {
	t.Helper()

	clock := testutil.NewFakeClock(testutil.Epoch)
	store := docstore.NewInMemoryStore(clock)
	deps := SharedDeps{
		Shared:  memory.NewSharedContext(store, clock),
		Mailbox: memory.NewMailbox(store, clock),
		Facts:   memory.NewInMemoryFactStore(clock),
	}

	r, err := NewRegistry(SharedDescriptors(), SharedShims(deps))
	require.NoError(t, err)

	return r, deps
}

func sharedToolContext(threadID string) *core.ToolContext {
	return core.NewToolContext(context.Background(), core.Scope{
		BrandID:   "b1",
		AgentName: "marketing",
		ThreadID:  threadID,
	}, testutil.NewFakeClock(testutil.Epoch), logging.NoOpLogger{})
}

func TestSharedContextTools(t *testing.T) {
	r, _ := newSharedRegistry(t)
	tc := sharedToolContext("")

	_, err := r.Dispatch(tc, WriteSharedContext, `{"label":"pricing","value":"flower 10% under market"}`)
	require.NoError(t, err)

	res, err := r.Dispatch(tc, ReadSharedContext, `{"label":"pricing"}`)
	require.NoError(t, err)

	block, ok := res.Output.(memory.Block)
	require.True(t, ok)
	assert.Equal(t, "flower 10% under market", block.Value)
	assert.Equal(t, "marketing", block.UpdatedBy)

	res, err = r.Dispatch(tc, ReadSharedContext, `{"label":"missing"}`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "no shared context block")
}

func TestFactTools(t *testing.T) {
	r, _ := newSharedRegistry(t)
	tc := sharedToolContext("")

	_, err := r.Dispatch(tc, SaveFact, `{"content":"Competitor X dropped vape prices","tags":["pricing"]}`)
	require.NoError(t, err)

	res, err := r.Dispatch(tc, SearchFacts, `{"query":"vape"}`)
	require.NoError(t, err)

	facts, ok := res.Output.([]memory.Fact)
	require.True(t, ok)
	require.Len(t, facts, 1)
	assert.Equal(t, "marketing", facts[0].Source)

	res, err = r.Dispatch(tc, SearchFacts, `{"query":"edibles"}`)
	require.NoError(t, err)
	assert.Equal(t, "no matching facts", res.Output)
}

func TestSendAgentMessage_EmitsEffect(t *testing.T) {
	r, deps := newSharedRegistry(t)
	tc := sharedToolContext("")

	res, err := r.Dispatch(tc, SendAgentMessage, `{"to":"compliance","body":"please review the 4/20 copy"}`)
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)

	eff, ok := res.Effects[0].(core.MessageEffect)
	require.True(t, ok)
	assert.Equal(t, "marketing", eff.From)
	assert.Equal(t, "compliance", eff.To)

	inbox, err := deps.Mailbox.Inbox(context.Background(), "b1", "compliance")
	require.NoError(t, err)
	assert.Empty(t, inbox, "delivery is left to the runner")

	_, err = r.Dispatch(tc, SendAgentMessage, `{"to":"marketing","body":"hi"}`)
	assert.Error(t, err)
}

func TestCheckAgentMessages(t *testing.T) {
	r, deps := newSharedRegistry(t)
	tc := sharedToolContext("")

	res, err := r.Dispatch(tc, CheckAgentMessages, `{}`)
	require.NoError(t, err)
	assert.Equal(t, "no messages", res.Output)

	_, err = deps.Mailbox.Send(context.Background(), memory.Message{BrandID: "b1", From: "intel", To: "marketing", Body: "price drop"}, nil)
	require.NoError(t, err)

	res, err = r.Dispatch(tc, CheckAgentMessages, `{}`)
	require.NoError(t, err)

	msgs, ok := res.Output.([]memory.Message)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestHandoffToAgent(t *testing.T) {
	r, _ := newSharedRegistry(t)

	res, err := r.Dispatch(sharedToolContext("t1"), HandoffToAgent, `{"to_agent":"compliance","reason":"needs legal review"}`)
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, core.HandoffEffect{ThreadID: "t1", ToAgent: "compliance", Reason: "needs legal review"}, res.Effects[0])

	_, err = r.Dispatch(sharedToolContext(""), HandoffToAgent, `{"to_agent":"compliance","reason":"x"}`)

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidation, te.Code)
}
