// Package broadcast fans out update lifecycle events to connected observers.
package broadcast

import (
	"log/slog"
	"sync"
)

type Event string

const (
	Connected Event = "CONNECTED"

	FeedsUpdateStarted  Event = "FEEDS_UPDATE_STARTED"
	FeedsUpdateRunning  Event = "FEEDS_UPDATE_RUNNING"
	FeedsUpdateFinished Event = "FEEDS_UPDATE_FINISHED"

	FeedUpdateStarted  Event = "FEED_UPDATE_STARTED"
	FeedUpdateRunning  Event = "FEED_UPDATE_RUNNING"
	FeedUpdateFinished Event = "FEED_UPDATE_FINISHED"
)

// Observer receives events. Send may fail when the observer went away; the
// hub does not retry.
type Observer interface {
	Send(event Event) error
}

type Broadcaster interface {
	Broadcast(event Event) int
}

var _ Broadcaster = (*Hub)(nil)

// Hub owns the set of connected observers.
type Hub struct {
	mu        sync.RWMutex
	observers map[Observer]struct{}
}

func NewHub() *Hub {
	return &Hub{observers: make(map[Observer]struct{})}
}

func (h *Hub) Add(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers[o] = struct{}{}
}

func (h *Hub) Remove(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.observers, o)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Broadcast sends event to every observer connected at the time of the call
// and returns how many deliveries succeeded. Observers that fail are skipped;
// removal stays with the connection that owns them.
func (h *Hub) Broadcast(event Event) int {
	h.mu.RLock()
	targets := make([]Observer, 0, len(h.observers))
	for o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, o := range targets {
		if err := o.Send(event); err != nil {
			slog.Debug("Failed to deliver event", "event", string(event), "error", err)
			continue
		}
		delivered++
	}

	return delivered
}
