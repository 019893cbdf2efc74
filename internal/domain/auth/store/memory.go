package store

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	items     map[string]string
	mutex     sync.RWMutex
	namespace string
}

// NewMemory builds an in-memory store. Contents do not survive the process.
func NewMemory(cfg Config) Store {
	return &memoryStore{
		items:     make(map[string]string),
		namespace: namespaceOf(cfg),
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	v, ok := s.items[key]
	s.mutex.RUnlock()
	return v, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mutex.Lock()
	s.items[key] = value
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.items, key)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Keys(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return map[string]any{
		"type":      "memory",
		"namespace": s.namespace,
		"total":     len(s.items),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}
