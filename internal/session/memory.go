package session

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemoryStore builds an in-memory session store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{values: make(map[string]map[string]string)}
}

func (s *memoryStore) SetMany(_ context.Context, clientID string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.values[clientID]
	if !ok {
		bucket = make(map[string]string)
		s.values[clientID] = bucket
	}
	for k, v := range values {
		bucket[k] = v
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, clientID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[clientID][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *memoryStore) Delete(_ context.Context, clientID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.values[clientID]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(bucket, k)
	}
	if len(bucket) == 0 {
		delete(s.values, clientID)
	}
	return nil
}
