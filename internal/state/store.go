// Package state owns the latest accepted normalized snapshot. The poll loop
// is the sole writer; replay readers serialize against commits through the
// store's lock so a joining connection never observes a half-applied cycle.
package state

import (
	"sync"

	"live-results/dashboard/internal/model"
)

// Store holds the committed snapshot. Snapshots are immutable once committed;
// Commit swaps the whole cycle in as a single atomic step.
type Store struct {
	mu   sync.RWMutex
	curr *model.Snapshot
}

// NewStore returns an empty store; Current is nil until the first commit.
func NewStore() *Store {
	return &Store{}
}

// Commit publishes a fully processed snapshot.
func (s *Store) Commit(snap *model.Snapshot) {
	s.mu.Lock()
	s.curr = snap
	s.mu.Unlock()
}

// Current returns the committed snapshot, nil before the first cycle. Callers
// must treat it as read-only.
func (s *Store) Current() *model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curr
}

// View runs fn under the read lock, guaranteeing the snapshot cannot be
// swapped mid-read. Used for full-state replay to joining connections.
func (s *Store) View(fn func(snap *model.Snapshot)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.curr)
}
