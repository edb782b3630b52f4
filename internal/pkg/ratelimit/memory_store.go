package ratelimit

import (
	"sync"
	"time"
)

type memoryEntry struct {
	count    int64
	deadline time.Time
}

// MemoryStore is an in-process Store used by tests and single-node setups.
// The clock is injectable so window expiry can be driven deterministically.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Increment(key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !e.deadline.After(now) {
		e = &memoryEntry{deadline: now.Add(ttl)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) SetFlag(key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{count: 1, deadline: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) HasFlag(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.deadline.After(s.now()) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) TTL(key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return -1, nil
	}
	ttl := e.deadline.Sub(s.now())
	if ttl < 0 {
		return -1, nil
	}
	return ttl, nil
}
