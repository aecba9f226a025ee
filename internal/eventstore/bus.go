package eventstore

import (
	"context"
	"sync"

	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// Callback receives events as they are appended.
type Callback func(events.Event)

// Bus fans appended events out to subscribers. Callbacks run
// synchronously on the appending goroutine, so they must be fast and
// must not append events themselves.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]Callback
	nextID      int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]Callback)}
}

// Subscribe registers a callback and returns an unsubscribe function.
func (b *Bus) Subscribe(fn Callback) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish delivers an event to every subscriber.
func (b *Bus) Publish(event events.Event) {
	b.mu.RLock()
	callbacks := make([]Callback, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		callbacks = append(callbacks, fn)
	}
	b.mu.RUnlock()

	for _, fn := range callbacks {
		fn(event)
	}
}

// PublishingStore decorates a Store so every successful append also
// publishes to a Bus.
type PublishingStore struct {
	Store
	bus *Bus
}

// WithBus wraps a store with publication.
func WithBus(store Store, bus *Bus) *PublishingStore {
	return &PublishingStore{Store: store, bus: bus}
}

// Append implements Store, publishing after a durable append.
func (s *PublishingStore) Append(ctx context.Context, event events.Event) error {
	if err := s.Store.Append(ctx, event); err != nil {
		return err
	}
	s.bus.Publish(event)
	return nil
}
