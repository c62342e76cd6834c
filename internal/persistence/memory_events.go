package persistence

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryEventStore is a goroutine-safe EventStore backed by a map of
// per-run slices.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewInMemoryEventStore creates an empty InMemoryEventStore.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string][]Event)}
}

var _ EventStore = (*InMemoryEventStore)(nil)

func (s *InMemoryEventStore) AppendEvent(ctx context.Context, ev Event) error {
	if ev.RunID == "" {
		return ErrMissingRunID
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.events[runID]), nil
}

// Runs returns the IDs of every run with at least one event, sorted.
func (s *InMemoryEventStore) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
