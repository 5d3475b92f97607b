package handoff_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/auth"
	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/handoff"
	"github.com/hupe1980/brandmesh/internal/testutil"
)

func setup(t *testing.T) (*handoff.Coordinator, docstore.Store, context.Context) {
	t.Helper()

	clock := testutil.NewFakeClock(testutil.Epoch)
	store := docstore.NewInMemoryStore(clock)
	c := handoff.New(store, func(o *handoff.Options) {
		o.Clock = clock
		o.RetryDelay = time.Millisecond
		o.MaxRetries = 50
	})

	_, err := c.CreateThread(context.Background(), "b1", "th1", "intel")
	require.NoError(t, err)

	ctx := auth.WithPrincipal(context.Background(), auth.Principal{Subject: "intel", BrandID: "b1", Role: auth.RoleAgent})

	return c, store, ctx
}

func TestHandoffAppendsHistory(t *testing.T) {
	c, _, ctx := setup(t)

	before := c.GetHandoffHistory(ctx, "th1")
	require.True(t, before.Success)
	assert.Empty(t, before.Handoffs)

	res := c.HandoffToAgent(ctx, handoff.Input{ThreadID: "th1", ToAgent: "marketing", Reason: "pricing question"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "intel", res.Handoff.FromAgent)
	assert.Equal(t, testutil.Epoch, res.Handoff.Timestamp)

	after := c.GetHandoffHistory(ctx, "th1")
	require.True(t, after.Success)
	require.Len(t, after.Handoffs, len(before.Handoffs)+1)
	assert.Equal(t, "marketing", after.Handoffs[0].ToAgent)
	assert.Equal(t, testutil.Epoch, after.Handoffs[0].Timestamp)

	thread, _, err := c.GetThread(ctx, "th1")
	require.NoError(t, err)
	assert.Equal(t, "marketing", thread.PrimaryAgent)
	assert.ElementsMatch(t, []string{"intel", "marketing"}, thread.AssignedAgents)

	res = c.HandoffToAgent(ctx, handoff.Input{ThreadID: "th1", ToAgent: "intel", Reason: "back"})
	require.True(t, res.Success)

	thread, _, err = c.GetThread(ctx, "th1")
	require.NoError(t, err)
	assert.Equal(t, "intel", thread.PrimaryAgent)
	assert.Len(t, thread.AssignedAgents, 2)
	require.Len(t, thread.HandoffHistory, 2)
	assert.Equal(t, "marketing", thread.HandoffHistory[1].FromAgent)
}

func TestHandoffErrors(t *testing.T) {
	c, _, ctx := setup(t)

	res := c.HandoffToAgent(context.Background(), handoff.Input{ThreadID: "th1", ToAgent: "x"})
	assert.False(t, res.Success)
	assert.Equal(t, handoff.ErrMsgUnauthorized, res.Error)

	res = c.HandoffToAgent(ctx, handoff.Input{ThreadID: "missing", ToAgent: "x"})
	assert.Equal(t, handoff.ErrMsgThreadNotFound, res.Error)

	res = c.HandoffToAgent(ctx, handoff.Input{ThreadID: "th1"})
	assert.Equal(t, handoff.ErrMsgInvalidInput, res.Error)

	other := auth.WithPrincipal(context.Background(), auth.Principal{Subject: "spy", BrandID: "b2", Role: auth.RoleAgent})
	res = c.HandoffToAgent(other, handoff.Input{ThreadID: "th1", ToAgent: "x"})
	assert.Equal(t, handoff.ErrMsgUnauthorized, res.Error)

	hist := c.GetHandoffHistory(context.Background(), "th1")
	assert.Equal(t, handoff.ErrMsgUnauthorized, hist.Error)

	hist = c.GetHandoffHistory(ctx, "missing")
	assert.False(t, hist.Success)
	assert.Equal(t, handoff.ErrMsgThreadNotFound, hist.Error)
}

func TestConcurrentHandoffsAreNotLost(t *testing.T) {
	c, _, ctx := setup(t)

	const n = 8

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.HandoffToAgent(ctx, handoff.Input{ThreadID: "th1", ToAgent: fmt.Sprintf("agent-%d", i), Reason: "load"})
			assert.True(t, res.Success, res.Error)
		}()
	}
	wg.Wait()

	thread, _, err := c.GetThread(ctx, "th1")
	require.NoError(t, err)
	assert.Len(t, thread.HandoffHistory, n)
	assert.Len(t, thread.AssignedAgents, n+1)
	assert.Equal(t, thread.HandoffHistory[n-1].ToAgent, thread.PrimaryAgent)
}

func TestHistoryNormalizesLegacyTimestamps(t *testing.T) {
	c, store, ctx := setup(t)

	_, err := store.Set(context.Background(), handoff.ThreadKey("legacy"), map[string]any{
		"brandId":      "b1",
		"primaryAgent": "ops",
		"handoffHistory": []any{
			map[string]any{"id": "1", "toAgent": "a", "timestamp": "2026-03-01T12:00:00Z"},
			map[string]any{"id": "2", "toAgent": "b", "timestamp": float64(testutil.Epoch.Unix())},
			map[string]any{"id": "3", "toAgent": "c", "timestamp": float64(testutil.Epoch.UnixMilli())},
			map[string]any{"id": "4", "toAgent": "d", "timestamp": map[string]any{"_seconds": float64(testutil.Epoch.Unix()), "_nanoseconds": float64(0)}},
		},
	})
	require.NoError(t, err)

	hist := c.GetHandoffHistory(ctx, "legacy")
	require.True(t, hist.Success, hist.Error)
	require.Len(t, hist.Handoffs, 4)

	for _, h := range hist.Handoffs {
		assert.True(t, testutil.Epoch.Equal(h.Timestamp), h.ID)
		assert.Equal(t, time.UTC, h.Timestamp.Location())
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	local := testutil.Epoch.In(time.FixedZone("PST", -8*3600))

	got, err := handoff.NormalizeTimestamp(local)
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch, got)

	got, err = handoff.NormalizeTimestamp(float64(1.5))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1, 500_000_000).UTC(), got)

	_, err = handoff.NormalizeTimestamp(nil)
	require.Error(t, err)

	_, err = handoff.NormalizeTimestamp("yesterday")
	require.Error(t, err)

	_, err = handoff.NormalizeTimestamp(true)
	require.Error(t, err)
}

func TestCreateThreadTwiceConflicts(t *testing.T) {
	c, _, _ := setup(t)

	_, err := c.CreateThread(context.Background(), "b1", "th1", "ops")
	require.ErrorIs(t, err, core.ErrConflict)
}
