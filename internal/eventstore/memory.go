package eventstore

import (
	"context"
	"sync"

	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// MemoryStore keeps the event log in memory. Used for ephemeral
// conversations and tests. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	log    []events.Event
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.log = append(s.log, event)
	return nil
}

// All implements Store.
func (s *MemoryStore) All(context.Context) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]events.Event, len(s.log))
	copy(out, s.log)
	return out, nil
}

// Len implements Store.
func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.log), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
