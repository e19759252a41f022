// Package cache provides a bounded, TTL'd read cache with copy-on-refresh
// snapshot semantics. Instances are passed by reference into worker tasks;
// there is no package-level state.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Snapshot is a bounded read cache. Readers take an RLock only long enough
// to copy the map reference; refreshes build a new map and swap it in, so
// readers never observe a partially updated snapshot.
type Snapshot struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	hits   uint64
	misses uint64
}

// New creates a Snapshot cache bounded to maxEntries with the given TTL.
func New(maxEntries int, ttl time.Duration) *Snapshot {
	return &Snapshot{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached value when present and unexpired.
func (s *Snapshot) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	snap := s.entries
	s.mu.RUnlock()

	e, ok := snap[key]
	if !ok || s.now().After(e.expiresAt) {
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		return nil, false
	}

	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
	return e.value, true
}

// Set stores a value. When the cache is full the refresh drops expired
// entries first and evicts arbitrarily only if still over the bound.
func (s *Snapshot) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]entry, len(s.entries)+1)
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			continue
		}
		next[k] = e
	}

	if len(next) >= s.maxEntries {
		for k := range next {
			delete(next, k)
			if len(next) < s.maxEntries {
				break
			}
		}
	}

	next[key] = entry{value: value, expiresAt: now.Add(s.ttl)}
	s.entries = next
}

// Len reports the current entry count, expired entries included.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats reports cumulative hit/miss counts.
func (s *Snapshot) Stats() (hits, misses uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses
}
