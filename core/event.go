package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WildcardEventType subscribes an agent to every event published on the bus.
// Wildcard subscribers are notified after direct subscribers of the same event.
const WildcardEventType = "*"

// Event is the primary unit of communication on the bus. After publication it
// should be treated as immutable. It captures:
//   - Correlation (ID, Source)
//   - A hierarchical type such as "oee/updated" or "order/analyzed"
//   - An opaque structured payload passed by reference
//   - Dispatch constraints (Priority, Timeout, Retries)
//
// Retries is carried for forward compatibility; the bus performs no automatic
// re-delivery.
type Event struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Payload   any           `json:"payload,omitempty"`
	Source    string        `json:"source"`
	Timestamp time.Time     `json:"timestamp"`
	Priority  int           `json:"priority"`
	Timeout   time.Duration `json:"timeout"`
	Retries   int           `json:"retries"`
}

// NewEvent creates an event of the given type authored by source. Priority
// defaults to 0 and Timeout to the bus default; use the publish options to
// override either.
func NewEvent(eventType string, payload any, source string) Event {
	return Event{
		ID:        NewID(),
		Type:      eventType,
		Payload:   payload,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for events and related records.
func NewID() string { return uuid.NewString() }

// Handler processes a delivered event on behalf of a subscribed agent. The
// context carries the per-delivery timeout; a handler that outlives it keeps
// running best-effort but its outcome is discarded.
type Handler func(ctx context.Context, ev Event) (any, error)

// Subscription records an agent's interest in an event type. Subscriptions
// for the same event type are ordered by descending priority, ties broken by
// insertion order.
type Subscription struct {
	EventType    string    `json:"event_type"`
	AgentID      string    `json:"agent_id"`
	Handler      Handler   `json:"-"`
	Priority     int       `json:"priority"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// Delivery is the per-subscriber outcome of a publish call.
type Delivery struct {
	AgentID string `json:"agent_id"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Err     error  `json:"-"`
}

// ErrorMessage returns the delivery error text, or "" on success. Convenience
// for serialization paths that cannot carry an error value.
func (d Delivery) ErrorMessage() string {
	if d.Err == nil {
		return ""
	}
	return d.Err.Error()
}
