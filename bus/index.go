package bus

import (
	"sort"
	"sync"

	"github.com/plantmesh/plantmesh/core"
)

// SubscriptionIndex maps event types (including the wildcard) to the ordered
// list of interested agents. Within an event type, subscriptions are ordered
// by descending priority, ties broken by insertion order. Safe for concurrent
// use.
type SubscriptionIndex struct {
	mu   sync.RWMutex
	subs map[string][]core.Subscription
}

// NewSubscriptionIndex constructs an empty index.
func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{subs: make(map[string][]core.Subscription)}
}

// Insert adds a subscription, preserving priority order. Equal priorities
// keep insertion order (stable).
func (i *SubscriptionIndex) Insert(sub core.Subscription) {
	i.mu.Lock()
	defer i.mu.Unlock()

	list := i.subs[sub.EventType]
	pos := len(list)
	for idx, existing := range list {
		if sub.Priority > existing.Priority {
			pos = idx
			break
		}
	}
	list = append(list, core.Subscription{})
	copy(list[pos+1:], list[pos:])
	list[pos] = sub
	i.subs[sub.EventType] = list
}

// Remove deletes all subscriptions for the agent/event pair and returns how
// many were removed. No-op if absent.
func (i *SubscriptionIndex) Remove(eventType, agentID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	list, ok := i.subs[eventType]
	if !ok {
		return 0
	}
	kept := list[:0]
	removed := 0
	for _, sub := range list {
		if sub.AgentID == agentID {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	if len(kept) == 0 {
		delete(i.subs, eventType)
	} else {
		i.subs[eventType] = kept
	}
	return removed
}

// Replace atomically swaps the entire subscription list for one event type.
// The provided subscriptions are re-sorted by priority (stable), so callers
// may pass them in configuration order.
func (i *SubscriptionIndex) Replace(eventType string, subs []core.Subscription) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(subs) == 0 {
		delete(i.subs, eventType)
		return
	}
	ordered := make([]core.Subscription, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Priority > ordered[b].Priority })
	i.subs[eventType] = ordered
}

// ReplaceAll atomically swaps the whole index for the given subscription
// sets. Event types absent from byType lose all their subscriptions. Used by
// configuration reload, which rebuilds rather than diffs.
func (i *SubscriptionIndex) ReplaceAll(byType map[string][]core.Subscription) {
	next := make(map[string][]core.Subscription, len(byType))
	for eventType, subs := range byType {
		if len(subs) == 0 {
			continue
		}
		ordered := make([]core.Subscription, len(subs))
		copy(ordered, subs)
		sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Priority > ordered[b].Priority })
		next[eventType] = ordered
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.subs = next
}

// Resolve returns the notification order for an event type: direct
// subscribers first, wildcard subscribers after. The returned slice is a
// copy.
func (i *SubscriptionIndex) Resolve(eventType string) []core.Subscription {
	i.mu.RLock()
	defer i.mu.RUnlock()

	direct := i.subs[eventType]
	wildcard := i.subs[core.WildcardEventType]
	if eventType == core.WildcardEventType {
		wildcard = nil
	}

	resolved := make([]core.Subscription, 0, len(direct)+len(wildcard))
	resolved = append(resolved, direct...)
	resolved = append(resolved, wildcard...)
	return resolved
}

// Count returns the total number of subscriptions across all event types.
func (i *SubscriptionIndex) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	total := 0
	for _, list := range i.subs {
		total += len(list)
	}
	return total
}

// EventTypes returns the number of event types with at least one subscriber.
func (i *SubscriptionIndex) EventTypes() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.subs)
}
