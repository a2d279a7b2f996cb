package events

import (
	"sync"

	"agora/core/types"
)

// WireEvent is implemented by payloads that can render themselves as a
// wire-friendly types.Event for RPC subscribers.
type WireEvent interface {
	Event
	Event() *types.Event
}

// Ring keeps a bounded tail of emitted events for the RPC events_latest
// query. Oldest entries are dropped once the capacity is reached.
type Ring struct {
	mu   sync.RWMutex
	cap  int
	tail []*types.Event
}

// NewRing creates a ring buffer holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 256
	}
	return &Ring{cap: capacity}
}

// Emit implements the Emitter interface. Payloads that do not implement
// WireEvent (or render a nil wire event) are ignored.
func (r *Ring) Emit(evt Event) {
	wire, ok := evt.(WireEvent)
	if !ok {
		return
	}
	rendered := wire.Event()
	if rendered == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tail = append(r.tail, rendered)
	if len(r.tail) > r.cap {
		r.tail = r.tail[len(r.tail)-r.cap:]
	}
}

// Latest returns up to limit most recent events, newest last.
func (r *Ring) Latest(limit int) []*types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.tail) {
		limit = len(r.tail)
	}
	out := make([]*types.Event, limit)
	copy(out, r.tail[len(r.tail)-limit:])
	return out
}
