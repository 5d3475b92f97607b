package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/internal/testutil"
)

func TestMailbox_SendAndInbox(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	mb := NewMailbox(docstore.NewInMemoryStore(clock), clock)
	ctx := context.Background()

	sent, err := mb.Send(ctx, Message{BrandID: "b1", From: "intel", To: "marketing", Body: "Rival dropped prices"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, testutil.Epoch, sent.SentAt)

	inbox, err := mb.Inbox(ctx, "b1", "marketing")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "intel", inbox[0].From)

	empty, err := mb.Inbox(ctx, "b1", "ops")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = mb.Send(ctx, Message{BrandID: "b1", To: "marketing"}, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestMailbox_RateLimitUsesInjectedClock(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	mb := NewMailbox(docstore.NewInMemoryStore(clock), clock)
	ctx := context.Background()
	limit := 2

	msg := Message{BrandID: "b1", From: "intel", To: "marketing", Body: "hi"}
	_, err := mb.Send(ctx, msg, &limit)
	require.NoError(t, err)
	_, err = mb.Send(ctx, msg, &limit)
	require.NoError(t, err)
	_, err = mb.Send(ctx, msg, &limit)
	assert.ErrorIs(t, err, ErrRateLimited)

	clock.Advance(31 * time.Minute)
	_, err = mb.Send(ctx, msg, &limit)
	assert.NoError(t, err)

	// other brands have their own bucket
	_, err = mb.Send(ctx, Message{BrandID: "b2", To: "marketing", Body: "hi"}, &limit)
	assert.NoError(t, err)
}
