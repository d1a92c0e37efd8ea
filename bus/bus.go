package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plantmesh/plantmesh/core"
	"github.com/plantmesh/plantmesh/logging"
	"github.com/plantmesh/plantmesh/metrics"
)

// ErrHandlerTimeout marks a delivery whose handler did not complete within
// the event's timeout. The handler itself keeps running best-effort; only its
// outcome is discarded.
var ErrHandlerTimeout = errors.New("bus: handler timed out")

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// HistoryCapacity bounds the circular event history.
	HistoryCapacity int
	// DefaultTimeout bounds each handler invocation when the publish does
	// not override it.
	DefaultTimeout time.Duration
	// Logger receives bus lifecycle messages; defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics optionally feeds prometheus collectors; nil disables.
	Metrics *metrics.Collector
}

// SubscribeOptions configures a single subscription.
type SubscribeOptions struct {
	// Priority orders the subscriber among peers of the same event type
	// (higher first). Default 0.
	Priority int
}

// PublishOptions configures a single publish call.
type PublishOptions struct {
	// Priority is stamped on the event record.
	Priority int
	// Timeout bounds each handler invocation; 0 uses the bus default.
	Timeout time.Duration
	// Sequential delivers to subscribers one at a time in priority order
	// instead of the default concurrent fan-out.
	Sequential bool
}

// Metrics is a point-in-time snapshot of the bus running aggregates.
type Metrics struct {
	EventsPublished    uint64        `json:"events_published"`
	EventsProcessed    uint64        `json:"events_processed"`
	FailedDeliveries   uint64        `json:"failed_deliveries"`
	AvgProcessingTime  time.Duration `json:"avg_processing_time"`
	TotalSubscriptions int           `json:"total_subscriptions"`
	UniqueEventTypes   int           `json:"unique_event_types"`
	SuccessRate        float64       `json:"success_rate"`
}

// EventBus is a priority-ordered publish/subscribe dispatcher with parallel
// or sequential delivery and a per-handler timeout. Public methods are safe
// for concurrent use.
type EventBus struct {
	index   *SubscriptionIndex
	history *history

	defaultTimeout time.Duration
	logger         logging.Logger
	metrics        *metrics.Collector

	mu              sync.Mutex
	published       uint64
	processed       uint64
	failed          uint64
	totalProcessing time.Duration
}

// New constructs an EventBus with optional overrides.
func New(optFns ...func(o *Options)) *EventBus {
	opts := Options{
		HistoryCapacity: 200,
		DefaultTimeout:  30 * time.Second,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &EventBus{
		index:          NewSubscriptionIndex(),
		history:        newHistory(opts.HistoryCapacity),
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

// Subscribe registers a handler for an event type and returns the stored
// subscription record.
func (b *EventBus) Subscribe(eventType, agentID string, h core.Handler, optFns ...func(o *SubscribeOptions)) core.Subscription {
	opts := SubscribeOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	sub := core.Subscription{
		EventType:    eventType,
		AgentID:      agentID,
		Handler:      h,
		Priority:     opts.Priority,
		SubscribedAt: time.Now().UTC(),
	}
	b.index.Insert(sub)
	b.logger.Debug("subscription added", "event_type", eventType, "agent_id", agentID, "priority", opts.Priority)
	return sub
}

// Unsubscribe removes all subscriptions for the agent/event pair; no-op if
// absent.
func (b *EventBus) Unsubscribe(eventType, agentID string) {
	removed := b.index.Remove(eventType, agentID)
	if removed > 0 {
		b.logger.Debug("subscription removed", "event_type", eventType, "agent_id", agentID, "count", removed)
	}
}

// ReplaceSubscriptions atomically swaps the subscriber list for one event
// type; an empty list clears it.
func (b *EventBus) ReplaceSubscriptions(eventType string, subs []core.Subscription) {
	b.index.Replace(eventType, subs)
}

// ReplaceAllSubscriptions atomically swaps the whole subscription index.
// Intended for configuration reload, which rebuilds rather than diffs.
func (b *EventBus) ReplaceAllSubscriptions(byType map[string][]core.Subscription) {
	b.index.ReplaceAll(byType)
	b.logger.Info("subscription index rebuilt", "event_types", b.index.EventTypes(), "subscriptions", b.index.Count())
}

// Publish constructs an event, appends it to the bounded history and
// dispatches it to all direct and wildcard subscribers. In the default
// parallel mode all handlers run concurrently and the call waits for every
// outcome to settle; in sequential mode handlers run one at a time in
// subscriber order. A handler error or timeout is reported in its delivery
// record and never aborts the publish. Publishing to an event type with zero
// subscribers is a logged no-op returning an empty delivery slice.
func (b *EventBus) Publish(ctx context.Context, eventType string, payload any, source string, optFns ...func(o *PublishOptions)) (core.Event, []core.Delivery) {
	opts := PublishOptions{Timeout: b.defaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = b.defaultTimeout
	}

	ev := core.NewEvent(eventType, payload, source)
	ev.Priority = opts.Priority
	ev.Timeout = opts.Timeout

	b.history.add(ev)
	b.mu.Lock()
	b.published++
	b.mu.Unlock()
	b.metrics.EventPublished(eventType)

	subs := b.index.Resolve(eventType)
	if len(subs) == 0 {
		b.logger.Info("event published with no subscribers", "event_type", eventType, "source", source, "event_id", ev.ID)
		return ev, []core.Delivery{}
	}

	b.logger.Debug("dispatching event", "event_type", eventType, "event_id", ev.ID, "subscribers", len(subs), "sequential", opts.Sequential)

	deliveries := make([]core.Delivery, len(subs))
	if opts.Sequential {
		for idx, sub := range subs {
			deliveries[idx] = b.deliver(ctx, ev, sub)
		}
	} else {
		var wg sync.WaitGroup
		for idx, sub := range subs {
			wg.Add(1)
			go func(idx int, sub core.Subscription) {
				defer wg.Done()
				deliveries[idx] = b.deliver(ctx, ev, sub)
			}(idx, sub)
		}
		wg.Wait()
	}

	return ev, deliveries
}

// deliver runs one handler bounded by the event timeout and records the
// outcome in the bus aggregates.
func (b *EventBus) deliver(ctx context.Context, ev core.Event, sub core.Subscription) core.Delivery {
	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, ev.Timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := sub.Handler(dctx, ev)
		done <- outcome{result: result, err: err}
	}()

	delivery := core.Delivery{AgentID: sub.AgentID}
	select {
	case out := <-done:
		if out.err != nil {
			delivery.Err = fmt.Errorf("handler for agent %s failed: %w", sub.AgentID, out.err)
		} else {
			delivery.Success = true
			delivery.Result = out.result
		}
	case <-dctx.Done():
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			delivery.Err = fmt.Errorf("%w: agent %s exceeded %s", ErrHandlerTimeout, sub.AgentID, ev.Timeout)
		} else {
			delivery.Err = fmt.Errorf("delivery to agent %s cancelled: %w", sub.AgentID, dctx.Err())
		}
	}

	dur := time.Since(start)
	b.mu.Lock()
	b.processed++
	b.totalProcessing += dur
	if !delivery.Success {
		b.failed++
	}
	b.mu.Unlock()
	b.metrics.DeliveryCompleted(dur, delivery.Success)

	if !delivery.Success {
		b.logger.Warn("delivery failed", "event_type", ev.Type, "event_id", ev.ID, "agent_id", sub.AgentID, "error", delivery.Err.Error())
	}
	return delivery
}

// History returns events matching the filter, most recent first.
func (b *EventBus) History(f HistoryFilter) []core.Event {
	return b.history.matching(f)
}

// Metrics returns a snapshot of the bus running aggregates.
func (b *EventBus) Metrics() Metrics {
	b.mu.Lock()
	published, processed, failed, total := b.published, b.processed, b.failed, b.totalProcessing
	b.mu.Unlock()

	m := Metrics{
		EventsPublished:    published,
		EventsProcessed:    processed,
		FailedDeliveries:   failed,
		TotalSubscriptions: b.index.Count(),
		UniqueEventTypes:   b.index.EventTypes(),
	}
	if processed > 0 {
		m.AvgProcessingTime = total / time.Duration(processed)
		m.SuccessRate = float64(processed-failed) / float64(processed)
	}
	return m
}
