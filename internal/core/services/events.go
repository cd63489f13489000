package services

import (
	"sync"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// EventBus fans lifecycle events out to subscribed listeners.
// Delivery is synchronous and in subscription order; late subscribers
// see only events emitted after they subscribed.
type EventBus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]domain.Listener
	order     []int
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[int]domain.Listener)}
}

// Subscribe registers a listener and returns a function that removes it.
func (b *EventBus) Subscribe(l domain.Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.listeners[id]; !ok {
			return
		}
		delete(b.listeners, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Emit delivers an event to every current listener.
// A nil bus discards the event.
func (b *EventBus) Emit(e domain.Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	snapshot := make([]domain.Listener, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range snapshot {
		l.HandleEvent(e)
	}
}
