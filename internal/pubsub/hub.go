// Package pubsub provides the push channel: a fan-out callback registry and
// a reconnecting WebSocket transport built on it.
package pubsub

import (
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Handler receives the raw payload of one event.
type Handler = func(payload types.Payload)

type subscriber struct {
	id string
	fn Handler
}

// Hub broadcasts every event to all handlers registered for it. Handlers
// run on the emitting goroutine in registration order.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscriber)}
}

// On registers fn for event and returns a function that removes it. The
// returned function is idempotent.
func (h *Hub) On(event string, fn Handler) func() {
	id := uuid.NewString()
	h.mu.Lock()
	h.subs[event] = append(h.subs[event], subscriber{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(event, id) })
	}
}

func (h *Hub) remove(event, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[event]
	for i, s := range subs {
		if s.id == id {
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(h.subs, event)
			} else {
				h.subs[event] = next
			}
			return
		}
	}
}

// Emit invokes every handler registered for event. Handlers registered or
// removed during dispatch take effect from the next Emit. It returns the
// number of handlers invoked.
func (h *Hub) Emit(event string, payload types.Payload) int {
	h.mu.RLock()
	subs := h.subs[event]
	h.mu.RUnlock()
	for _, s := range subs {
		s.fn(payload)
	}
	return len(subs)
}

// EmitValue encodes v and emits it.
func (h *Hub) EmitValue(event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Emit(event, b)
	return nil
}

// Count returns the number of handlers registered for event.
func (h *Hub) Count(event string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[event])
}
