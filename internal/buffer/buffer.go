// Package buffer keeps a bounded, newest-first history of recent events per
// user key, used to serve late-joining subscribers a snapshot.
package buffer

import (
	"sync"

	"github.com/overlaykit/relay/internal/event"
)

// DefaultCapacity is the per-key history bound.
const DefaultCapacity = 50

// Store holds one ring of recent events per user key. Rings are created
// lazily on first append and removed when cleared.
type Store struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string][]event.Event // newest first
}

// NewStore creates an empty store. A capacity <= 0 falls back to
// DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[string][]event.Event),
	}
}

// Append pushes an event at the head of the key's ring, evicting the oldest
// entry once capacity is reached.
func (s *Store) Append(userKey string, ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.rings[userKey]
	ring = append([]event.Event{ev}, ring...)
	if len(ring) > s.capacity {
		ring = ring[:s.capacity]
	}
	s.rings[userKey] = ring
}

// List returns a snapshot copy of the key's ring, most recent first. Callers
// never observe mutation mid-iteration.
func (s *Store) List(userKey string) []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.rings[userKey]
	out := make([]event.Event, len(ring))
	copy(out, ring)
	return out
}

// Clear empties the ring for one key only.
func (s *Store) Clear(userKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, userKey)
}

// Len reports the current ring length for a key.
func (s *Store) Len(userKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rings[userKey])
}
