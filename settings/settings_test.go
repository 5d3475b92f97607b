package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/internal/testutil"
	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/settings"
)

func newCache(t *testing.T, clock *testutil.FakeClock) *settings.Cache {
	t.Helper()

	c, err := settings.New(func(o *settings.Options) {
		o.TTL = time.Minute
		o.Clock = clock
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func TestCache_ExpiresByInjectedClock(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	c := newCache(t, clock)

	loads := 0
	loader := func(_ context.Context, tenantID string) (settings.ModelRouting, error) {
		loads++
		return settings.ModelRouting{ToolModel: "gpt-4o-mini", Effort: model.EffortLow}, nil
	}

	r, err := c.Get(context.Background(), "t1", loader)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", r.ToolModel)

	clock.Advance(30 * time.Second)
	_, err = c.Get(context.Background(), "t1", loader)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	clock.Advance(31 * time.Second)
	_, err = c.Get(context.Background(), "t1", loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)

	c.Invalidate("t1")
	_, err = c.Get(context.Background(), "t1", loader)
	require.NoError(t, err)
	assert.Equal(t, 3, loads)
}

func TestCache_LoaderErrors(t *testing.T) {
	c := newCache(t, testutil.NewFakeClock(testutil.Epoch))

	_, err := c.Get(context.Background(), "t1", func(context.Context, string) (settings.ModelRouting, error) {
		return settings.ModelRouting{}, errors.New("store offline")
	})
	assert.ErrorContains(t, err, "store offline")

	_, err = c.Get(context.Background(), "t1", func(context.Context, string) (settings.ModelRouting, error) {
		return settings.ModelRouting{Effort: "extreme"}, nil
	})
	assert.Error(t, err)
}

func TestNew_RejectsZeroTTL(t *testing.T) {
	_, err := settings.New(func(o *settings.Options) { o.TTL = 0 })
	assert.Error(t, err)
}

func TestStoreLoader(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	store := docstore.NewInMemoryStore(clock)
	fallback := settings.ModelRouting{ReasoningModel: "claude-sonnet-4-5"}
	loader := settings.StoreLoader(store, fallback)

	r, err := loader(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, fallback, r)

	want := settings.ModelRouting{ToolModel: "gpt-4o", ReasoningModel: "claude-opus-4-1", Effort: model.EffortHigh}
	require.NoError(t, settings.Save(context.Background(), store, "t1", want))

	r, err = loader(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, want, r)

	assert.Error(t, settings.Save(context.Background(), store, "t1", settings.ModelRouting{Effort: "max"}))
}
