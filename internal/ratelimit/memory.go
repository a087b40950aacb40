package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is the number of store operations between opportunistic sweeps
// of expired entries. Sweeping inline (instead of with a background goroutine)
// keeps the store leak-free without anything to start or stop.
const sweepEvery = 5000

// MemoryStore is the process-local CounterStore used when no shared store is
// configured, and as the fail-open fallback when the shared store errors.
// State is not shared across instances; that loss of global accuracy is the
// accepted trade-off for availability.
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memCounter
	opN     uint64

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time
}

type memCounter struct {
	count   int64
	resetAt time.Time
}

// NewMemoryStore returns an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memCounter),
		now:     time.Now,
	}
}

// Get returns the live counter for key; expired entries read as absent.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweep(now)

	e, ok := s.entries[key]
	if !ok || !e.resetAt.After(now) {
		return 0, false, nil
	}
	return e.count, true, nil
}

// Incr increments the counter for key, starting a fresh window when the key
// is absent or its previous window has elapsed.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweep(now)

	e, ok := s.entries[key]
	if !ok || !e.resetAt.After(now) {
		e = &memCounter{count: 0, resetAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// TTL reports the remaining window for key; absent or expired keys report 0.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	d := e.resetAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, nil
}

// Delete removes the counter for key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len reports the number of live entries (expired ones included until swept).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// maybeSweep drops expired entries after a threshold of operations, then
// resets the counter. Caller must hold s.mu.
func (s *MemoryStore) maybeSweep(now time.Time) {
	s.opN++
	if s.opN < sweepEvery {
		return
	}
	for k, e := range s.entries {
		if !e.resetAt.After(now) {
			delete(s.entries, k)
		}
	}
	s.opN = 0
}
