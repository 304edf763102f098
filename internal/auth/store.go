package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryChallengeStore is the single-process challenge store.
type InMemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge // identity -> challenge
}

// NewInMemoryChallengeStore creates an empty store.
func NewInMemoryChallengeStore() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{
		challenges: make(map[string]Challenge),
	}
}

func (s *InMemoryChallengeStore) Put(_ context.Context, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.Identity] = c
	return nil
}

func (s *InMemoryChallengeStore) Get(_ context.Context, identity string) (Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[identity]
	return c, ok, nil
}

func (s *InMemoryChallengeStore) Consume(_ context.Context, identity, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[identity]
	if !ok || c.Token != token {
		return false, nil
	}
	delete(s.challenges, identity)
	return true, nil
}

func (s *InMemoryChallengeStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored challenges.
func (s *InMemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// --- In-memory Audit Recorder ---

// InMemoryAuthAuditRecorder provides an in-memory audit log implementation.
type InMemoryAuthAuditRecorder struct {
	mu      sync.RWMutex
	entries map[string][]AuditLogEntry // wallet -> entries
}

// NewInMemoryAuthAuditRecorder creates a new in-memory audit recorder.
func NewInMemoryAuthAuditRecorder() *InMemoryAuthAuditRecorder {
	return &InMemoryAuthAuditRecorder{
		entries: make(map[string][]AuditLogEntry),
	}
}

// Record appends an audit entry.
func (r *InMemoryAuthAuditRecorder) Record(ctx context.Context, entry AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.Wallet] = append(r.entries[entry.Wallet], entry)
	return nil
}

// Last returns the last audit entry for a wallet.
func (r *InMemoryAuthAuditRecorder) Last(ctx context.Context, wallet string) (AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[wallet]
	if len(entries) == 0 {
		return AuditLogEntry{}, fmt.Errorf("no entries")
	}
	return entries[len(entries)-1], nil
}

// GetEntries returns all entries for a wallet (for debugging).
func (r *InMemoryAuthAuditRecorder) GetEntries(wallet string) []AuditLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]AuditLogEntry{}, r.entries[wallet]...)
}
