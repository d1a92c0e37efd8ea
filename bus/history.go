package bus

import (
	"sync"
	"time"

	"github.com/plantmesh/plantmesh/core"
)

// HistoryFilter narrows History queries. Zero values mean "no constraint".
type HistoryFilter struct {
	EventType string
	Source    string
	Since     time.Time
	Limit     int
}

// history is a bounded circular buffer of published events, oldest evicted
// first. Safe for concurrent use.
type history struct {
	mu       sync.RWMutex
	capacity int
	entries  []core.Event
	next     int
	full     bool
}

func newHistory(capacity int) *history {
	return &history{capacity: capacity, entries: make([]core.Event, capacity)}
}

func (h *history) add(ev core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = ev
	h.next = (h.next + 1) % h.capacity
	if h.next == 0 {
		h.full = true
	}
}

// matching returns events satisfying the filter, most recent first. Filtering
// is pure; history is never mutated by reads.
func (h *history) matching(f HistoryFilter) []core.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = h.capacity
	}

	var out []core.Event
	for n := 1; n <= size; n++ {
		// Walk backwards from the most recently written slot.
		ev := h.entries[(h.next-n+h.capacity)%h.capacity]
		if f.EventType != "" && ev.Type != f.EventType {
			continue
		}
		if f.Source != "" && ev.Source != f.Source {
			continue
		}
		if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}
