package profile

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps profiles in insertion order and wakes watchers on change.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]Profile
	order   []string
	changed chan struct{}
	failing error
}

// NewMemoryStore builds an in-memory profile store for development and tests.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Profile), changed: make(chan struct{})}
}

// FailInserts makes subsequent inserts return err. Passing nil restores normal behavior.
func (s *MemoryStore) FailInserts(err error) {
	s.mu.Lock()
	s.failing = err
	s.mu.Unlock()
}

func (s *MemoryStore) Insert(_ context.Context, p Profile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return "", s.failing
	}
	p.DocID = uuid.NewString()
	s.docs[p.DocID] = p
	s.order = append(s.order, p.DocID)
	s.broadcastLocked()
	return p.DocID, nil
}

func (s *MemoryStore) Lookup(_ context.Context, uid string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return last(s.matchLocked(uid))
}

func (s *MemoryStore) List(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[docID]; !ok {
		return ErrNotFound
	}
	delete(s.docs, docID)
	for i, id := range s.order {
		if id == docID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.broadcastLocked()
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, uid string) (*Subscription, error) {
	return newSubscription(ctx, func(ctx context.Context, emit emitFunc) error {
		for {
			s.mu.RLock()
			snapshot := s.matchLocked(uid)
			changed := s.changed
			s.mu.RUnlock()

			if !emit(snapshot) {
				return nil
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return nil
			}
		}
	}), nil
}

func (s *MemoryStore) matchLocked(uid string) []Profile {
	var out []Profile
	for _, id := range s.order {
		if p := s.docs[id]; p.UID == uid {
			out = append(out, p)
		}
	}
	return out
}

func (s *MemoryStore) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
