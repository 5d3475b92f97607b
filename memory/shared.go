package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
)

// MaxBlockChars bounds a shared context block.
const MaxBlockChars = 4000

const blockPrefix = "block:"

// Block is a labelled piece of shared context visible to every agent of a brand.
type Block struct {
	Label     string    `json:"label"`
	Value     string    `json:"value"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SharedContext stores shared context blocks per brand in a single document.
// Each block is a top-level field so concurrent writers of different blocks
// never overwrite each other.
type SharedContext struct {
	store docstore.Store
	clock core.Clock
}

// NewSharedContext creates a SharedContext. A nil clock defaults to SystemClock.
func NewSharedContext(store docstore.Store, clock core.Clock) *SharedContext {
	if clock == nil {
		clock = core.SystemClock{}
	}

	return &SharedContext{store: store, clock: clock}
}

func sharedKey(brandID string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionShared, ID: brandID}
}

// Attach records agentName as a member of the brand's shared scope.
func (s *SharedContext) Attach(ctx context.Context, brandID, agentName string) error {
	return appendToArray(ctx, s.store, sharedKey(brandID), "members", agentName)
}

// Members lists the agents attached to the brand's shared scope.
func (s *SharedContext) Members(ctx context.Context, brandID string) ([]string, error) {
	doc, err := s.store.Get(ctx, sharedKey(brandID))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var out struct {
		Members []string `json:"members"`
	}

	if err := docstore.Decode(doc.Data, &out); err != nil {
		return nil, err
	}

	return out.Members, nil
}

// Write stores a block. Values longer than MaxBlockChars are rejected.
func (s *SharedContext) Write(ctx context.Context, brandID, label, value, agentName string) (Block, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Block{}, &core.ValidationError{Field: "label", Message: "must not be empty"}
	}

	if len(value) > MaxBlockChars {
		return Block{}, &core.ValidationError{Field: "value", Message: fmt.Sprintf("exceeds %d characters", MaxBlockChars)}
	}

	b := Block{Label: label, Value: value, UpdatedBy: agentName, UpdatedAt: s.clock.Now()}
	data, err := docstore.Encode(b)
	if err != nil {
		return Block{}, err
	}

	key := sharedKey(brandID)
	_, err = s.store.Update(ctx, key, docstore.Update{Set: map[string]any{blockPrefix + label: data}})
	if errors.Is(err, core.ErrNotFound) {
		_, err = s.store.Set(ctx, key, map[string]any{blockPrefix + label: data}, docstore.IfAbsent())
		if errors.Is(err, core.ErrConflict) {
			_, err = s.store.Update(ctx, key, docstore.Update{Set: map[string]any{blockPrefix + label: data}})
		}
	}

	if err != nil {
		return Block{}, err
	}

	return b, nil
}

// Read returns a single block or core.ErrNotFound.
func (s *SharedContext) Read(ctx context.Context, brandID, label string) (Block, error) {
	blocks, err := s.List(ctx, brandID)
	if err != nil {
		return Block{}, err
	}

	for _, b := range blocks {
		if b.Label == label {
			return b, nil
		}
	}

	return Block{}, fmt.Errorf("%w: shared block %q", core.ErrNotFound, label)
}

// List returns all blocks of the brand ordered by label.
func (s *SharedContext) List(ctx context.Context, brandID string) ([]Block, error) {
	doc, err := s.store.Get(ctx, sharedKey(brandID))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var blocks []Block
	for field, v := range doc.Data {
		if !strings.HasPrefix(field, blockPrefix) {
			continue
		}

		m, ok := v.(map[string]any)
		if !ok {
			continue
		}

		var b Block
		if err := docstore.Decode(m, &b); err != nil {
			return nil, err
		}

		blocks = append(blocks, b)
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Label < blocks[j].Label })

	return blocks, nil
}
