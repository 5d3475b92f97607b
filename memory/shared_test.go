package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/internal/testutil"
)

func TestSharedContext_WriteReadList(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	shared := NewSharedContext(docstore.NewInMemoryStore(clock), clock)
	ctx := context.Background()

	_, err := shared.Read(ctx, "b1", "pricing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = shared.Write(ctx, "b1", "pricing", "Rival cut gummies to $18", "intel")
	require.NoError(t, err)
	_, err = shared.Write(ctx, "b1", "campaigns", "Spring promo live", "marketing")
	require.NoError(t, err)
	_, err = shared.Write(ctx, "b1", "pricing", "Rival cut gummies to $16", "intel")
	require.NoError(t, err)

	b, err := shared.Read(ctx, "b1", "pricing")
	require.NoError(t, err)
	assert.Equal(t, "Rival cut gummies to $16", b.Value)
	assert.Equal(t, "intel", b.UpdatedBy)
	assert.Equal(t, testutil.Epoch, b.UpdatedAt)

	blocks, err := shared.List(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "campaigns", blocks[0].Label)

	other, err := shared.List(ctx, "b2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSharedContext_Validation(t *testing.T) {
	shared := NewSharedContext(docstore.NewInMemoryStore(nil), nil)
	ctx := context.Background()

	_, err := shared.Write(ctx, "b1", " ", "x", "intel")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = shared.Write(ctx, "b1", "big", strings.Repeat("x", MaxBlockChars+1), "intel")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSharedContext_AttachIsIdempotent(t *testing.T) {
	shared := NewSharedContext(docstore.NewInMemoryStore(nil), nil)
	ctx := context.Background()

	require.NoError(t, shared.Attach(ctx, "b1", "intel"))
	require.NoError(t, shared.Attach(ctx, "b1", "intel"))
	require.NoError(t, shared.Attach(ctx, "b1", "marketing"))

	members, err := shared.Members(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"intel", "marketing"}, members)
}
