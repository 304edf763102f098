package settlement

import (
	"context"
	"sync"
)

// InFlight serialises settlement attempts for the same transaction within
// one process. Attempts across processes are serialised by the store.
type InFlight struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{pending: make(map[string]chan struct{})}
}

// Acquire blocks until no other attempt holds key, then marks key in
// flight. The returned release must be called exactly once.
func (f *InFlight) Acquire(ctx context.Context, key string) (release func(), waited bool, err error) {
	for {
		f.mu.Lock()
		done, busy := f.pending[key]
		if !busy {
			done = make(chan struct{})
			f.pending[key] = done
			f.mu.Unlock()
			return func() { f.release(key, done) }, waited, nil
		}
		f.mu.Unlock()

		waited = true
		select {
		case <-done:
		case <-ctx.Done():
			return nil, waited, ctx.Err()
		}
	}
}

func (f *InFlight) release(key string, done chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, key)
	close(done)
}

// Len returns the number of keys currently in flight.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
