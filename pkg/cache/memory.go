package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps partitions in process memory.
// Used by tests and by the daemon when no durable backend is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[string]*Entry)}
}

// Open returns a handle to the named partition.
func (s *MemoryStore) Open(_ context.Context, name string) (Partition, error) {
	if name == "" {
		return nil, fmt.Errorf("partition name cannot be empty")
	}
	return &memoryPartition{store: s, name: name}, nil
}

// Delete drops the named partition.
func (s *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.partitions[name]
	delete(s.partitions, name)
	if ok {
		PartitionsDeleted.Inc()
	}
	return ok, nil
}

// Names lists existing partitions.
func (s *MemoryStore) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memoryPartition struct {
	store *MemoryStore
	name  string
}

func (p *memoryPartition) Name() string { return p.name }

func (p *memoryPartition) Get(_ context.Context, key RequestKey) (*Entry, error) {
	p.store.mu.RLock()
	entry, ok := p.store.partitions[p.name][key.String()]
	p.store.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues(p.name).Inc()
	return entry.Clone(), nil
}

func (p *memoryPartition) Put(_ context.Context, key RequestKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	entries, ok := p.store.partitions[p.name]
	if !ok {
		entries = make(map[string]*Entry)
		p.store.partitions[p.name] = entries
	}
	entries[key.String()] = entry.Clone()
	return nil
}

func (p *memoryPartition) Keys(_ context.Context) ([]string, error) {
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()

	entries := p.store.partitions[p.name]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
