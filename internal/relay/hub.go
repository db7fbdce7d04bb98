package relay

import (
	"context"
	"sync"

	"ridehail/internal/domain"
)

const defaultHubBuffer = 64

// Hub is an in-process Publisher and Source. A subscriber that falls behind
// by more than the buffer is disconnected; its stream reopens and resyncs.
type Hub struct {
	mu     sync.Mutex
	subs   map[*hubSubscription]struct{}
	buffer int
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	return &Hub{
		subs:   make(map[*hubSubscription]struct{}),
		buffer: buffer,
	}
}

// Publish delivers event to every open subscription without blocking.
func (h *Hub) Publish(_ context.Context, event domain.RideEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			h.drop(sub)
		}
	}
	return nil
}

// Open registers a new subscription.
func (h *Hub) Open(_ context.Context) (Subscription, error) {
	sub := &hubSubscription{
		hub:    h,
		events: make(chan domain.RideEvent, h.buffer),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub, nil
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// drop must be called with h.mu held.
func (h *Hub) drop(sub *hubSubscription) {
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.events)
	}
}

type hubSubscription struct {
	hub    *Hub
	events chan domain.RideEvent
}

func (s *hubSubscription) Events() <-chan domain.RideEvent {
	return s.events
}

func (s *hubSubscription) Close() error {
	s.hub.mu.Lock()
	s.hub.drop(s)
	s.hub.mu.Unlock()
	return nil
}

// Ensure Hub implements both sides of the relay.
var (
	_ Publisher = (*Hub)(nil)
	_ Source    = (*Hub)(nil)
)
