package docstore

import (
	"context"
	"sync"

	"github.com/hupe1980/brandmesh/core"
)

// InMemoryStore is a Store backed by a map. Intended for tests and single
// process deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[Key]Document
	clock core.Clock
}

// NewInMemoryStore creates an empty store. A nil clock defaults to SystemClock.
func NewInMemoryStore(clock core.Clock) *InMemoryStore {
	if clock == nil {
		clock = core.SystemClock{}
	}

	return &InMemoryStore{docs: make(map[Key]Document), clock: clock}
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, key Key) (Document, error) {
	if err := key.Validate(); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	doc, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return Document{}, NotFound(key)
	}

	data, err := Normalize(doc.Data)
	if err != nil {
		return Document{}, err
	}

	doc.Data = data

	return doc, nil
}

// Set implements Store.
func (s *InMemoryStore) Set(_ context.Context, key Key, data map[string]any, optFns ...func(o *WriteOptions)) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	opts := WriteOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	normalized, err := Normalize(data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.docs[key].Version
	if err := CheckVersion(key, opts.IfVersion, current); err != nil {
		return 0, err
	}

	doc := Document{Key: key, Data: normalized, Version: current + 1, UpdatedAt: s.clock.Now()}
	s.docs[key] = doc

	return doc.Version, nil
}

// Update implements Store.
func (s *InMemoryStore) Update(_ context.Context, key Key, u Update) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[key]
	if !ok {
		return 0, NotFound(key)
	}

	if err := CheckVersion(key, u.ExpectedVersion, doc.Version); err != nil {
		return 0, err
	}

	data, err := Apply(doc.Data, u)
	if err != nil {
		return 0, err
	}

	doc.Data = data
	doc.Version++
	doc.UpdatedAt = s.clock.Now()
	s.docs[key] = doc

	return doc.Version, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error { return nil }
