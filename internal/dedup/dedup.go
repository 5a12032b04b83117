// Package dedup tracks already-processed message ids in a bounded,
// insertion-ordered set. This is write-once tracking, not a cache:
// eviction is by insertion order, never by access.
package dedup

import (
	"context"
	"log"
	"sync"
)

// Persister mirrors set mutations into durable storage. Persistence is
// best effort; a write failure never fails the in-memory mutation.
type Persister interface {
	AddProcessedID(ctx context.Context, id string) error
	TrimProcessed(ctx context.Context, capacity int) error
}

// Set is a bounded FIFO set of message ids.
type Set struct {
	mu       sync.Mutex
	capacity int
	order    []string
	members  map[string]struct{}
	persist  Persister
}

// New creates a Set bounded at capacity entries. persist may be nil
// for a purely in-memory set.
func New(capacity int, persist Persister) *Set {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Set{
		capacity: capacity,
		members:  make(map[string]struct{}),
		persist:  persist,
	}
}

// Load seeds the set from a persisted id list in insertion order. Only
// the newest capacity entries are kept.
func (s *Set) Load(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) > s.capacity {
		ids = ids[len(ids)-s.capacity:]
	}
	for _, id := range ids {
		if _, ok := s.members[id]; ok {
			continue
		}
		s.members[id] = struct{}{}
		s.order = append(s.order, id)
	}
}

// Has reports whether the id has been recorded.
func (s *Set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[id]
	return ok
}

// Add records an id, evicting the oldest entries once the bound is
// exceeded. Adding an id that is already present has no effect.
func (s *Set) Add(ctx context.Context, id string) {
	s.mu.Lock()
	if _, ok := s.members[id]; ok {
		s.mu.Unlock()
		return
	}
	s.members[id] = struct{}{}
	s.order = append(s.order, id)
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
	s.mu.Unlock()

	if s.persist == nil {
		return
	}
	if err := s.persist.AddProcessedID(ctx, id); err != nil {
		log.Printf("dedup: persist add %s: %v", id, err)
		return
	}
	if err := s.persist.TrimProcessed(ctx, s.capacity); err != nil {
		log.Printf("dedup: persist trim: %v", err)
	}
}

// Len returns the number of ids currently tracked.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
