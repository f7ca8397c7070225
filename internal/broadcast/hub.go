package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event is a named notification with a JSON payload, fanned out to every
// connected subscriber.
type Event struct {
	Name    string
	Payload json.RawMessage
}

var droppedEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "broadcast_events_dropped_total",
		Help: "Total number of broadcast events dropped due to slow subscribers",
	},
	[]string{"event"},
)

const subscriberBuffer = 16

type subscriber struct {
	ch        chan Event
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Hub fans events out to subscribers. Each subscriber has a buffered channel;
// when a subscriber's buffer is full the event is dropped for that subscriber
// so one slow client never blocks publishers or other subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// the subscription and closes the channel; it is safe to call more than once.
// Subscribing to a closed hub returns an already-closed channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.close()
	}

	return sub.ch, cancel
}

// Publish delivers the event to every subscriber. Full subscriber buffers
// drop the event for that subscriber and count the drop.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			droppedEvents.WithLabelValues(event.Name).Inc()
			h.logger.Debug("dropped broadcast event for slow subscriber",
				slog.String("event", event.Name),
			)
		}
	}
}

// Close disconnects every subscriber and rejects new subscriptions. Used
// during shutdown so open event streams terminate promptly.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
