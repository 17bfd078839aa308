package hub

import (
	"sync"

	"github.com/dyluth/rota/pkg/booking"
)

// Subscription is one observer of the hub.
// Caller must call Close() when done.
type Subscription struct {
	hub    *Hub
	events chan booking.Map
	once   sync.Once
}

// Events returns the channel of applied updates, in the order they were
// persisted. Each Map is shared between observers and must not be modified.
//
// The channel is closed when the subscription is closed, when the hub shuts
// down, or when the observer fell too far behind and was evicted.
func (s *Subscription) Events() <-chan booking.Map {
	return s.events
}

// Close removes the observer from the hub. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		s.hub.remove(s)
	})
	return nil
}
