package hub

import (
	"log/slog"
	"sync"

	"hearth/internal/amqp"
)

const subscriberBuffer = 16

// Hub fans notification events out to in-process subscribers, keyed by
// group. Slow subscribers drop events rather than block the broadcaster.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan *amqp.Event]struct{}
}

func New() *Hub {
	return &Hub{subs: make(map[string]map[chan *amqp.Event]struct{})}
}

// Subscribe registers a listener for one group's events. The returned
// cancel func must be called when the listener goes away.
func (h *Hub) Subscribe(groupID string) (<-chan *amqp.Event, func()) {
	ch := make(chan *amqp.Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[groupID] == nil {
		h.subs[groupID] = make(map[chan *amqp.Event]struct{})
	}
	h.subs[groupID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[groupID]; ok {
			if _, subscribed := set[ch]; subscribed {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(h.subs, groupID)
				}
			}
		}
	}
	return ch, cancel
}

// Broadcast delivers an event to every subscriber of its group and
// returns how many received it.
func (h *Hub) Broadcast(event *amqp.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[event.GroupID] {
		select {
		case ch <- event:
			delivered++
		default:
			slog.Debug("dropping event for slow subscriber",
				"type", event.Type,
				"group_id", event.GroupID)
		}
	}
	return delivered
}

// Subscribers returns the subscriber count for a group.
func (h *Hub) Subscribers(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[groupID])
}
