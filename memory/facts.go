package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/brandmesh/core"
)

// Fact is a persisted, searchable piece of knowledge shared across agents.
type Fact struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score,omitempty"`
}

// FactStore persists and searches facts.
type FactStore interface {
	SaveFact(ctx context.Context, f Fact) (Fact, error)
	SearchFacts(ctx context.Context, brandID, query string, limit int) ([]Fact, error)
}

// NormalizeFact fills defaults and validates a fact before storage.
func NormalizeFact(f Fact, clock core.Clock) (Fact, error) {
	f.Content = strings.TrimSpace(f.Content)
	if f.Content == "" {
		return Fact{}, &core.ValidationError{Field: "content", Message: "must not be empty"}
	}

	if f.BrandID == "" {
		return Fact{}, &core.ValidationError{Field: "brand_id", Message: "must not be empty"}
	}

	if f.ID == "" {
		f.ID = core.NewID()
	}

	if f.CreatedAt.IsZero() {
		f.CreatedAt = clock.Now()
	}

	return f, nil
}

// InMemoryFactStore is a naive process-local FactStore. Search is a
// case-insensitive substring scan, newest first, every hit scored 1.0.
// Suitable for tests; use the chromem store for semantic recall.
type InMemoryFactStore struct {
	mu    sync.RWMutex
	facts map[string][]Fact // brandID -> facts in insertion order
	clock core.Clock
}

// NewInMemoryFactStore creates an empty fact store.
func NewInMemoryFactStore(clock core.Clock) *InMemoryFactStore {
	if clock == nil {
		clock = core.SystemClock{}
	}

	return &InMemoryFactStore{facts: make(map[string][]Fact), clock: clock}
}

// SaveFact implements FactStore.
func (s *InMemoryFactStore) SaveFact(_ context.Context, f Fact) (Fact, error) {
	f, err := NormalizeFact(f, s.clock)
	if err != nil {
		return Fact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[f.BrandID] = append(s.facts[f.BrandID], f)

	return f, nil
}

// SearchFacts implements FactStore.
func (s *InMemoryFactStore) SearchFacts(_ context.Context, brandID, query string, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var out []Fact
	for _, f := range s.facts[brandID] {
		if q == "" || strings.Contains(strings.ToLower(f.Content), q) || containsTag(f.Tags, q) {
			f.Score = 1.0
			out = append(out, f)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func containsTag(tags []string, q string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, q) {
			return true
		}
	}

	return false
}
