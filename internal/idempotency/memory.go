package idempotency

import (
	"context"
	"sync"
	"time"

	"tillpoint/internal/types"
)

// purgeInterval is how many inserts elapse between opportunistic scans for
// expired entries. Expiry is otherwise checked lazily on read, so the scan
// only bounds memory for keys that are never looked up again.
const purgeInterval = 1024

// MemoryStore is an in-process Store implementation: a mutex-guarded map of
// key to expiry timestamp with an injectable clock. It replaces the global
// mutable timer state of ad-hoc dedup helpers with an explicit, injectable
// dependency so tests can advance time deterministically.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]time.Time // key -> expiresAt
	clock   types.Clock

	insertsSincePurge int
}

// NewMemoryStore creates a MemoryStore. A nil clock defaults to the real
// system clock.
func NewMemoryStore(clock types.Clock) *MemoryStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryStore{
		entries: make(map[Key]time.Time),
		clock:   clock,
	}
}

// CheckAndRecord implements Store. The check and the insert happen under one
// lock acquisition, so the first of any number of concurrent callers wins and
// every other caller observes isNew=false. An expired entry is treated as
// absent and re-recorded.
func (s *MemoryStore) CheckAndRecord(_ context.Context, key Key, ttl time.Duration) (bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiresAt, ok := s.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}

	s.entries[key] = now.Add(ttl)

	s.insertsSincePurge++
	if s.insertsSincePurge >= purgeInterval {
		s.purgeExpiredLocked(now)
		s.insertsSincePurge = 0
	}

	return true, nil
}

// Len returns the number of tracked entries, expired or not. Intended for
// tests and diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// purgeExpiredLocked removes expired entries. Caller must hold s.mu.
func (s *MemoryStore) purgeExpiredLocked(now time.Time) {
	for k, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Compile-time assertion that MemoryStore satisfies Store.
var _ Store = (*MemoryStore)(nil)
