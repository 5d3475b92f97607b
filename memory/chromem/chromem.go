// Package chromem implements memory.FactStore on chromem-go, an embedded
// pure Go vector database. Each brand gets its own collection.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/logging"
	"github.com/hupe1980/brandmesh/memory"
)

// Options configures the store.
type Options struct {
	Embedder Embedder
	Clock    core.Clock
	Logger   logging.Logger
	// MinSimilarity drops results scoring below this cosine similarity.
	MinSimilarity float32
}

// FactStore is a vector-backed memory.FactStore.
type FactStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	opts        Options
}

var _ memory.FactStore = (*FactStore)(nil)

// New creates an in-process vector fact store.
func New(optFns ...func(o *Options)) *FactStore {
	opts := Options{
		Embedder:      NewHashEmbedder(0),
		Clock:         core.SystemClock{},
		Logger:        logging.NoOpLogger{},
		MinSimilarity: 0.05,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &FactStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		opts:        opts,
	}
}

func (s *FactStore) collection(brandID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[brandID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[brandID]; ok {
		return col, nil
	}

	// embeddings are always supplied, so no embedding func is configured
	col, err := s.db.CreateCollection("facts_"+brandID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}

	s.collections[brandID] = col

	return col, nil
}

// SaveFact implements memory.FactStore.
func (s *FactStore) SaveFact(ctx context.Context, f memory.Fact) (memory.Fact, error) {
	f, err := memory.NormalizeFact(f, s.opts.Clock)
	if err != nil {
		return memory.Fact{}, err
	}

	if len(Tokenize(f.Content)) == 0 {
		return memory.Fact{}, &core.ValidationError{Field: "content", Message: "contains no searchable words"}
	}

	col, err := s.collection(f.BrandID)
	if err != nil {
		return memory.Fact{}, err
	}

	emb, err := s.opts.Embedder.Embed(ctx, f.Content)
	if err != nil {
		return memory.Fact{}, fmt.Errorf("chromem: embed: %w", err)
	}

	doc := chromem.Document{
		ID:        f.ID,
		Content:   f.Content,
		Embedding: emb,
		Metadata: map[string]string{
			"brand_id":   f.BrandID,
			"source":     f.Source,
			"tags":       strings.Join(f.Tags, ","),
			"created_at": f.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return memory.Fact{}, fmt.Errorf("chromem: add document: %w", err)
	}

	s.opts.Logger.Debug("facts.saved", "brand_id", f.BrandID, "fact_id", f.ID)

	return f, nil
}

// SearchFacts implements memory.FactStore, ranking by cosine similarity.
func (s *FactStore) SearchFacts(ctx context.Context, brandID, query string, limit int) ([]memory.Fact, error) {
	if limit <= 0 {
		limit = 5
	}

	if len(Tokenize(query)) == 0 {
		return nil, nil
	}

	col, err := s.collection(brandID)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	if limit > n {
		limit = n
	}

	emb, err := s.opts.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chromem: embed: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, emb, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	facts := make([]memory.Fact, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.opts.MinSimilarity {
			continue
		}

		created, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
		var tags []string
		if t := r.Metadata["tags"]; t != "" {
			tags = strings.Split(t, ",")
		}

		facts = append(facts, memory.Fact{
			ID:        r.ID,
			BrandID:   brandID,
			Content:   r.Content,
			Source:    r.Metadata["source"],
			Tags:      tags,
			CreatedAt: created,
			Score:     float64(r.Similarity),
		})
	}

	return facts, nil
}
