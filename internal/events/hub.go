package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cpcomms/dispatch/internal/domain"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 256

// Hub fans events out to local subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	logger *slog.Logger
}

// NewHub creates a hub whose subscribers buffer up to bufferSize events.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: bufferSize,
		logger: logger.With(slog.String("component", "event_hub")),
	}
}

// Subscription is one subscriber's queue. Its channel is closed when the
// subscriber leaves, falls behind, or the hub shuts down.
type Subscription struct {
	hub       *Hub
	ch        chan Event
	audiences map[Audience]struct{}
	evicted   atomic.Bool
}

// Events returns the subscriber's queue.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Evicted reports whether the hub closed the subscription because its
// queue was full. Events may have been missed.
func (s *Subscription) Evicted() bool {
	return s.evicted.Load()
}

// Close leaves the hub. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// audiencesFor computes membership from the verified identity.
func audiencesFor(actor domain.Actor) map[Audience]struct{} {
	set := map[Audience]struct{}{AudienceAll: {}}
	if actor.Fleet != "" {
		set[FleetAudience(actor.Fleet)] = struct{}{}
	}
	return set
}

// Subscribe registers a subscriber for actor. Events delivered after this
// call returns are queued for it.
func (h *Hub) Subscribe(actor domain.Actor) *Subscription {
	sub := &Subscription{
		hub:       h,
		ch:        make(chan Event, h.buffer),
		audiences: audiencesFor(actor),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}

	h.logger.Debug("subscriber joined",
		slog.String("actor_id", actor.ID),
		slog.Int("subscribers", len(h.subs)))
	return sub
}

// Deliver queues e for every member of its audience and returns how many
// subscribers received it. Subscribers with a full queue are evicted.
func (h *Hub) Deliver(e Event) int {
	var (
		delivered int
		slow      []*Subscription
	)

	// Sends happen under the read lock so no channel can be closed mid-send.
	h.mu.RLock()
	for sub := range h.subs {
		if _, ok := sub.audiences[e.Audience]; !ok {
			continue
		}
		select {
		case sub.ch <- e:
			delivered++
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		sub.evicted.Store(true)
		h.remove(sub)
		h.logger.Warn("evicted slow subscriber",
			slog.String("event_type", string(e.Type)),
			slog.String("task_id", e.TaskID.String()))
	}
	return delivered
}

// EvictAll disconnects every subscriber as if each had fallen behind. The
// bus uses it when the backplane itself dropped events.
func (h *Hub) EvictAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.evicted.Store(true)
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}
