// Package storetest holds the behavioural test suite every docstore.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
)

// Run executes the suite against stores produced by newStore. Each subtest gets
// a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), docstore.Key{Collection: "threads", ID: "nope"})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := docstore.Key{Collection: "threads", ID: "t1"}

		v, err := s.Set(ctx, key, map[string]any{"primaryAgent": "intel", "count": 2})
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		doc, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)
		assert.Equal(t, "intel", doc.Data["primaryAgent"])
		assert.Equal(t, 2.0, doc.Data["count"])
	})

	t.Run("conditional set", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := docstore.Key{Collection: "agents", ID: "b1:intel"}

		_, err := s.Set(ctx, key, map[string]any{"a": 1}, docstore.IfAbsent())
		require.NoError(t, err)

		_, err = s.Set(ctx, key, map[string]any{"a": 2}, docstore.IfAbsent())
		assert.ErrorIs(t, err, core.ErrConflict)

		_, err = s.Set(ctx, key, map[string]any{"a": 3}, docstore.IfVersion(7))
		assert.ErrorIs(t, err, core.ErrConflict)

		v, err := s.Set(ctx, key, map[string]any{"a": 4}, docstore.IfVersion(1))
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
	})

	t.Run("update set and array union", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := docstore.Key{Collection: "threads", ID: "t2"}

		_, err := s.Set(ctx, key, map[string]any{"primaryAgent": "intel", "assignedAgents": []any{"intel"}})
		require.NoError(t, err)

		v, err := s.Update(ctx, key, docstore.Update{
			Set: map[string]any{"primaryAgent": "marketing"},
			ArrayUnion: map[string][]any{
				"assignedAgents": {"intel", "marketing"},
				"handoffHistory": {map[string]any{"id": "h1", "toAgent": "marketing"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		doc, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "marketing", doc.Data["primaryAgent"])
		assert.Equal(t, []any{"intel", "marketing"}, doc.Data["assignedAgents"])
		require.Len(t, doc.Data["handoffHistory"], 1)
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(context.Background(), docstore.Key{Collection: "threads", ID: "ghost"}, docstore.Update{})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("update version conflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := docstore.Key{Collection: "threads", ID: "t3"}

		_, err := s.Set(ctx, key, map[string]any{"primaryAgent": "ops"})
		require.NoError(t, err)

		stale := int64(0)
		_, err = s.Update(ctx, key, docstore.Update{Set: map[string]any{"primaryAgent": "x"}, ExpectedVersion: &stale})
		assert.ErrorIs(t, err, core.ErrConflict)

		doc, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "ops", doc.Data["primaryAgent"])
	})

	t.Run("concurrent array unions are not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := docstore.Key{Collection: "threads", ID: "t4"}

		_, err := s.Set(ctx, key, map[string]any{"items": []any{}})
		require.NoError(t, err)

		const n = 8

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Update(ctx, key, docstore.Update{ArrayUnion: map[string][]any{"items": {i}}})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		doc, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Len(t, doc.Data["items"], n)
		assert.Equal(t, int64(n+1), doc.Version)
	})

	t.Run("concurrent creates have one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := docstore.Key{Collection: "threads", ID: "t5"}

		const n = 8

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			winners   []int
			conflicts int
		)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				_, err := s.Set(ctx, key, map[string]any{"creator": i}, docstore.IfAbsent())

				mu.Lock()
				defer mu.Unlock()

				switch {
				case err == nil:
					winners = append(winners, i)
				case errors.Is(err, core.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		assert.Equal(t, n-1, conflicts)

		doc, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)
		assert.Equal(t, float64(winners[0]), doc.Data["creator"])
	})
}
