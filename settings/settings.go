// Package settings caches per-tenant model routing settings.
//
// Entries remember when they were loaded and expire against an injected
// clock, so tests control expiry without sleeping. The backing store is a
// cost-bounded ristretto cache; eviction under pressure only costs a reload.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/logging"
	"github.com/hupe1980/brandmesh/model"
)

// ModelRouting selects the backends and effort used for a tenant.
type ModelRouting struct {
	ToolModel      string       `json:"toolModel,omitempty"`
	ReasoningModel string       `json:"reasoningModel,omitempty"`
	Effort         model.Effort `json:"effort,omitempty"`
}

// Validate checks the effort value.
func (r ModelRouting) Validate() error {
	if _, err := model.ParseEffort(string(r.Effort)); err != nil {
		return &core.ValidationError{Field: "effort", Message: err.Error()}
	}

	return nil
}

// Loader fetches the current settings of a tenant.
type Loader func(ctx context.Context, tenantID string) (ModelRouting, error)

// Options configure a Cache.
type Options struct {
	TTL    time.Duration
	Clock  core.Clock
	Logger logging.Logger
	// MaxEntries bounds the number of cached tenants.
	MaxEntries int64
}

type entry struct {
	value    ModelRouting
	loadedAt time.Time
}

// Cache is a TTL cache of ModelRouting keyed by tenant.
type Cache struct {
	store *ristretto.Cache
	group singleflight.Group
	opts  Options
}

// New creates a Cache.
func New(optFns ...func(o *Options)) (*Cache, error) {
	opts := Options{
		TTL:        5 * time.Minute,
		Clock:      core.SystemClock{},
		Logger:     logging.NoOpLogger{},
		MaxEntries: 10000,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.TTL <= 0 {
		return nil, errors.New("settings: ttl must be positive")
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        opts.MaxEntries * 10,
		MaxCost:            opts.MaxEntries,
		BufferItems:        64,
		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("settings: create cache: %w", err)
	}

	return &Cache{store: store, opts: opts}, nil
}

// Get returns the cached settings for tenantID, calling loader when the entry
// is missing or older than the TTL. Concurrent misses for one tenant share a
// single load.
func (c *Cache) Get(ctx context.Context, tenantID string, loader Loader) (ModelRouting, error) {
	if v, ok := c.store.Get(tenantID); ok {
		if e, ok := v.(entry); ok && c.fresh(e) {
			return e.value, nil
		}
	}

	v, err, _ := c.group.Do(tenantID, func() (any, error) {
		routing, err := loader(ctx, tenantID)
		if err != nil {
			return ModelRouting{}, err
		}

		if err := routing.Validate(); err != nil {
			return ModelRouting{}, err
		}

		c.store.Set(tenantID, entry{value: routing, loadedAt: c.opts.Clock.Now()}, 1)
		c.store.Wait()

		c.opts.Logger.Debug("settings.loaded", "tenant", tenantID, "tool_model", routing.ToolModel, "reasoning_model", routing.ReasoningModel)

		return routing, nil
	})
	if err != nil {
		return ModelRouting{}, fmt.Errorf("settings: load %s: %w", tenantID, err)
	}

	return v.(ModelRouting), nil
}

// Invalidate drops the entry for tenantID.
func (c *Cache) Invalidate(tenantID string) {
	c.store.Del(tenantID)
}

// Close releases the cache.
func (c *Cache) Close() {
	c.store.Close()
}

func (c *Cache) fresh(e entry) bool {
	return c.opts.Clock.Now().Sub(e.loadedAt) < c.opts.TTL
}

// Key addresses a tenant's settings document.
func Key(tenantID string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionSettings, ID: tenantID}
}

// StoreLoader reads settings documents from store. A missing document yields
// fallback.
func StoreLoader(store docstore.Store, fallback ModelRouting) Loader {
	return func(ctx context.Context, tenantID string) (ModelRouting, error) {
		doc, err := store.Get(ctx, Key(tenantID))
		if errors.Is(err, core.ErrNotFound) {
			return fallback, nil
		}
		if err != nil {
			return ModelRouting{}, err
		}

		var r ModelRouting
		if err := docstore.Decode(doc.Data, &r); err != nil {
			return ModelRouting{}, err
		}

		return r, nil
	}
}

// Save writes a tenant's settings document.
func Save(ctx context.Context, store docstore.Store, tenantID string, r ModelRouting) error {
	if err := r.Validate(); err != nil {
		return err
	}

	data, err := docstore.Encode(r)
	if err != nil {
		return err
	}

	_, err = store.Set(ctx, Key(tenantID), data)

	return err
}
