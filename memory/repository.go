package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/logging"
)

// RepositoryOptions configures a Repository.
type RepositoryOptions struct {
	Clock      core.Clock
	Logger     logging.Logger
	MaxRetries int
	RetryDelay time.Duration
}

// Repository is the validated persistence boundary for brand memory, agent
// memory and agent logs. Every read is validated before it is returned and
// every write is validated before it is stored.
type Repository struct {
	store docstore.Store
	opts  RepositoryOptions
}

// NewRepository creates a repository on top of store.
func NewRepository(store docstore.Store, optFns ...func(o *RepositoryOptions)) *Repository {
	opts := RepositoryOptions{
		Clock:      core.SystemClock{},
		Logger:     logging.NoOpLogger{},
		MaxRetries: 5,
		RetryDelay: 10 * time.Millisecond,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Repository{store: store, opts: opts}
}

// BrandKey addresses a brand memory document.
func BrandKey(brandID string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionBrands, ID: brandID}
}

// AgentKey addresses an agent memory document.
func AgentKey(brandID, agentName string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionAgents, ID: brandID + ":" + agentName}
}

// LogKey addresses an agent's log document.
func LogKey(brandID, agentName string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionAgentLogs, ID: brandID + ":" + agentName}
}

// LoadBrand reads and validates brand memory.
func (r *Repository) LoadBrand(ctx context.Context, brandID string) (core.BrandDomainMemory, int64, error) {
	doc, err := r.store.Get(ctx, BrandKey(brandID))
	if err != nil {
		return core.BrandDomainMemory{}, 0, err
	}

	raw, err := docstore.Raw(doc.Data)
	if err != nil {
		return core.BrandDomainMemory{}, 0, err
	}

	brand, err := core.DecodeBrandMemory(raw)
	if err != nil {
		return core.BrandDomainMemory{}, 0, fmt.Errorf("brand %s: %w", brandID, err)
	}

	return brand, doc.Version, nil
}

// SaveBrand validates and writes brand memory unconditionally. Use UpdateBrand
// for read-modify-write changes.
func (r *Repository) SaveBrand(ctx context.Context, brand core.BrandDomainMemory) (int64, error) {
	if brand.UpdatedAt.IsZero() {
		brand.UpdatedAt = r.opts.Clock.Now()
	}

	if err := brand.Validate(); err != nil {
		return 0, err
	}

	data, err := docstore.Encode(brand)
	if err != nil {
		return 0, err
	}

	return r.store.Set(ctx, BrandKey(brand.BrandID), data)
}

// UpdateBrand re-reads the brand, applies fn and writes the whole document
// back guarded by the version it read. Lost races are retried.
func (r *Repository) UpdateBrand(ctx context.Context, brandID string, fn func(b *core.BrandDomainMemory) error) (core.BrandDomainMemory, error) {
	var out core.BrandDomainMemory
	err := docstore.RetryOnConflict(ctx, r.opts.MaxRetries, r.opts.RetryDelay, func() error {
		brand, version, err := r.LoadBrand(ctx, brandID)
		if err != nil {
			return err
		}

		if err := fn(&brand); err != nil {
			return err
		}

		brand.UpdatedAt = r.opts.Clock.Now()
		if err := brand.Validate(); err != nil {
			return err
		}

		data, err := docstore.Encode(brand)
		if err != nil {
			return err
		}

		if _, err := r.store.Set(ctx, BrandKey(brandID), data, docstore.IfVersion(version)); err != nil {
			return err
		}

		out = brand
		return nil
	})

	return out, err
}

// LoadAgent reads agent memory. A missing document yields the zero state for
// kind with version 0, which is how memory is created on first use.
func (r *Repository) LoadAgent(ctx context.Context, brandID, agentName string, kind core.AgentKind) (core.AgentMemory, int64, error) {
	doc, err := r.store.Get(ctx, AgentKey(brandID, agentName))
	if errors.Is(err, core.ErrNotFound) {
		return core.NewAgentMemory(kind, brandID, agentName), 0, nil
	}

	if err != nil {
		return core.AgentMemory{}, 0, err
	}

	raw, err := docstore.Raw(doc.Data)
	if err != nil {
		return core.AgentMemory{}, 0, err
	}

	mem, err := core.DecodeAgentMemory(raw)
	if err != nil {
		return core.AgentMemory{}, 0, fmt.Errorf("agent %s/%s: %w", brandID, agentName, err)
	}

	if mem.Kind != kind {
		return core.AgentMemory{}, 0, &core.ValidationError{Field: "kind", Message: fmt.Sprintf("stored %q, expected %q", mem.Kind, kind)}
	}

	return mem, doc.Version, nil
}

// SaveAgent validates and writes the whole agent memory, conditional on the
// version previously read (0 when the memory did not exist yet).
func (r *Repository) SaveAgent(ctx context.Context, mem core.AgentMemory, expectedVersion int64) (int64, error) {
	if err := mem.Validate(); err != nil {
		return 0, err
	}

	data, err := docstore.Encode(mem)
	if err != nil {
		return 0, err
	}

	return r.store.Set(ctx, AgentKey(mem.BrandID, mem.AgentName), data, docstore.IfVersion(expectedVersion))
}

// UpdateAgent is the read-modify-write counterpart of SaveAgent for writers
// other than the agent itself (for example alert delivery).
func (r *Repository) UpdateAgent(ctx context.Context, brandID, agentName string, kind core.AgentKind, fn func(m *core.AgentMemory) error) (core.AgentMemory, error) {
	var out core.AgentMemory
	err := docstore.RetryOnConflict(ctx, r.opts.MaxRetries, r.opts.RetryDelay, func() error {
		mem, version, err := r.LoadAgent(ctx, brandID, agentName, kind)
		if err != nil {
			return err
		}

		if err := fn(&mem); err != nil {
			return err
		}

		if _, err := r.SaveAgent(ctx, mem, version); err != nil {
			return err
		}

		out = mem
		return nil
	})

	return out, err
}

// AppendLog appends an immutable entry to the agent's log.
func (r *Repository) AppendLog(ctx context.Context, entry core.AgentLogEntry) error {
	if entry.ID == "" || entry.AgentName == "" || entry.BrandID == "" || entry.Action == "" {
		return &core.ValidationError{Field: "log_entry", Message: "id, brand_id, agent_name and action are required"}
	}

	key := LogKey(entry.BrandID, entry.AgentName)

	return appendToArray(ctx, r.store, key, "entries", entry)
}

// ListLogs returns the agent's log in append order.
func (r *Repository) ListLogs(ctx context.Context, brandID, agentName string) ([]core.AgentLogEntry, error) {
	doc, err := r.store.Get(ctx, LogKey(brandID, agentName))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var out struct {
		Entries []core.AgentLogEntry `json:"entries"`
	}

	if err := docstore.Decode(doc.Data, &out); err != nil {
		return nil, err
	}

	return out.Entries, nil
}

// appendToArray unions value into field, creating the document on first use.
func appendToArray(ctx context.Context, store docstore.Store, key docstore.Key, field string, value any) error {
	for attempt := 0; attempt < 2; attempt++ {
		_, err := store.Update(ctx, key, docstore.Update{ArrayUnion: map[string][]any{field: {value}}})
		if err == nil {
			return nil
		}

		if !errors.Is(err, core.ErrNotFound) {
			return err
		}

		_, err = store.Set(ctx, key, map[string]any{field: []any{value}}, docstore.IfAbsent())
		if err == nil {
			return nil
		}

		if !errors.Is(err, core.ErrConflict) {
			return err
		}

		// created concurrently; the next Update will find it
	}

	return fmt.Errorf("append to %s: %w", key, core.ErrConflict)
}
