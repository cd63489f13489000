package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// eventRecorder collects emitted events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) HandleEvent(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *eventRecorder) ofKind(kind domain.EventKind) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestEventBus_EmitInSubscriptionOrder(t *testing.T) {
	bus := NewEventBus()

	var order []string
	bus.Subscribe(domain.ListenerFunc(func(domain.Event) { order = append(order, "first") }))
	bus.Subscribe(domain.ListenerFunc(func(domain.Event) { order = append(order, "second") }))

	bus.Emit(domain.Event{Kind: domain.EventSyncStarted})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	rec := &eventRecorder{}

	unsubscribe := bus.Subscribe(rec)
	bus.Emit(domain.Event{Kind: domain.EventSyncStarted})
	unsubscribe()
	unsubscribe()
	bus.Emit(domain.Event{Kind: domain.EventSyncCompleted})

	assert.Equal(t, []domain.EventKind{domain.EventSyncStarted}, rec.kinds())
}

func TestEventBus_NoReplayForLateSubscribers(t *testing.T) {
	bus := NewEventBus()
	bus.Emit(domain.Event{Kind: domain.EventCollectionReady})

	rec := &eventRecorder{}
	bus.Subscribe(rec)

	assert.Empty(t, rec.kinds())
}

func TestEventBus_NilBusDiscards(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() {
		bus.Emit(domain.Event{Kind: domain.EventSyncStarted})
	})
}
