// Package hub owns the single shared booking Map: it serves snapshots,
// persists full-document updates and fans every applied update out to all
// joined observers.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/rota/internal/store"
	"github.com/dyluth/rota/pkg/booking"
)

// DefaultBufferSize is the per-observer queue length used when none is configured.
const DefaultBufferSize = 16

// ErrInvalidUpdate is returned by ApplyUpdate when the Map has a malformed date key.
var ErrInvalidUpdate = errors.New("invalid booking update")

// ErrClosed is returned once the hub has been shut down.
var ErrClosed = errors.New("hub closed")

// Hub is the sync hub. Construct one per process with New and share it.
//
// Updates are last-writer-wins: writeMu serializes persistence so that the
// Map cached and broadcast last is always the Map saved last. loadMu
// serializes the first Load. mu guards the cache and the observer set and is
// never held across a Save or Load, so a slow store delays only the caller
// waiting on it.
type Hub struct {
	store      store.Store
	bufferSize int

	writeMu sync.Mutex
	loadMu  sync.Mutex

	mu        sync.Mutex
	cache     booking.Map
	loaded    bool
	closed    bool
	observers map[*Subscription]struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets how many undelivered broadcasts an observer may queue
// before it is evicted.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// New creates a hub backed by s. Nothing is loaded until first use.
func New(s store.Store, opts ...Option) *Hub {
	h := &Hub{
		store:      s,
		bufferSize: DefaultBufferSize,
		observers:  make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Snapshot returns a copy of the current Map, loading it from the store on
// first access. A failed load is returned to the caller and not cached.
func (h *Hub) Snapshot(ctx context.Context) (booking.Map, error) {
	if err := h.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache.Clone(), nil
}

// Join registers a new observer and returns it together with the snapshot it
// starts from. Every update applied after the snapshot is delivered on the
// subscription's Events channel.
func (h *Hub) Join(ctx context.Context) (*Subscription, booking.Map, error) {
	if h.isClosed() {
		return nil, nil, ErrClosed
	}
	if err := h.ensureLoaded(ctx); err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, nil, ErrClosed
	}

	sub := &Subscription{
		hub:    h,
		events: make(chan booking.Map, h.bufferSize),
	}
	h.observers[sub] = struct{}{}

	h.logEvent("observer_joined", map[string]interface{}{
		"observers": len(h.observers),
	})

	return sub, h.cache.Clone(), nil
}

// ApplyUpdate replaces the shared Map with m. The Map is persisted first;
// only after the store accepts it does the cache change and every observer,
// including the caller's own connection, receive it. On failure nothing is
// cached or broadcast and the error is returned to the caller.
func (h *Hub) ApplyUpdate(ctx context.Context, m booking.Map) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	next := m.Clone()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := h.store.Save(ctx, next); err != nil {
		h.logEvent("update_failed", map[string]interface{}{
			"level":    "error",
			"bookings": len(next),
			"error":    err.Error(),
		})
		return fmt.Errorf("failed to persist bookings: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.cache = next
	h.loaded = true
	delivered, evicted := h.broadcast(next)

	h.logEvent("update_applied", map[string]interface{}{
		"bookings":  len(next),
		"delivered": delivered,
		"evicted":   evicted,
	})

	return nil
}

// Observers returns the number of currently joined observers.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close ends every subscription and rejects further joins.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.observers {
		h.remove(sub)
	}
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) isLoaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// ensureLoaded fills the cache from the store once. It must be called
// without mu held. A Load that finishes after an update has already been
// applied is discarded, since the applied Map is newer.
func (h *Hub) ensureLoaded(ctx context.Context) error {
	if h.isLoaded() {
		return nil
	}

	h.loadMu.Lock()
	defer h.loadMu.Unlock()

	if h.isLoaded() {
		return nil
	}

	m, err := h.store.Load(ctx)
	if err != nil {
		h.logEvent("load_failed", map[string]interface{}{
			"level": "error",
			"error": err.Error(),
		})
		return fmt.Errorf("failed to load bookings: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loaded {
		return nil
	}
	h.cache = m.Clone()
	h.loaded = true
	h.logEvent("bookings_loaded", map[string]interface{}{
		"bookings": len(h.cache),
	})
	return nil
}

// broadcast must be called with mu held. It never blocks: an observer whose
// queue is full is evicted and its channel closed.
func (h *Hub) broadcast(m booking.Map) (delivered, evicted int) {
	for sub := range h.observers {
		select {
		case sub.events <- m:
			delivered++
		default:
			h.remove(sub)
			evicted++
		}
	}
	return delivered, evicted
}

// remove must be called with mu held.
func (h *Hub) remove(sub *Subscription) {
	if _, ok := h.observers[sub]; !ok {
		return
	}
	delete(h.observers, sub)
	close(sub.events)
}

// logEvent emits a structured JSON log line for hub events.
func (h *Hub) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	if _, ok := data["level"]; !ok {
		data["level"] = "info"
	}
	data["component"] = "hub"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Hub] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
