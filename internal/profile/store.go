package profile

import (
	"context"
	"sync"
)

// Store persists profiles. Lookup is a one-shot read; live updates go
// through Watch and must be released with Subscription.Close.
type Store interface {
	Insert(ctx context.Context, p Profile) (string, error)
	Lookup(ctx context.Context, uid string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	Delete(ctx context.Context, docID string) error
	Watch(ctx context.Context, uid string) (*Subscription, error)
}

// Subscription delivers snapshots of the profiles matching a uid until it is
// closed or its context ends.
type Subscription struct {
	updates chan []Profile
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

type emitFunc func(snapshot []Profile) bool

// newSubscription runs producer on its own goroutine. producer calls emit for
// every snapshot and returns when emit reports false or its work ends.
func newSubscription(parent context.Context, producer func(ctx context.Context, emit emitFunc) error) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{
		updates: make(chan []Profile),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	emit := func(snapshot []Profile) bool {
		select {
		case s.updates <- snapshot:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(s.done)
		defer close(s.updates)
		err := producer(ctx, emit)
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// Updates returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription) Updates() <-chan []Profile {
	return s.updates
}

// Close stops the subscription and waits for its producer to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Err reports why the subscription ended, if it was not closed by the caller.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func last(profiles []Profile) (Profile, error) {
	if len(profiles) == 0 {
		return Profile{}, ErrNotFound
	}
	return profiles[len(profiles)-1], nil
}
