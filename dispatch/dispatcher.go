package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plantmesh/plantmesh/bus"
	"github.com/plantmesh/plantmesh/core"
	"github.com/plantmesh/plantmesh/internal/util"
	"github.com/plantmesh/plantmesh/logging"
	"github.com/plantmesh/plantmesh/metrics"
	"github.com/plantmesh/plantmesh/ratelimit"
)

var (
	// ErrUnknownAgent is returned when no loaded agent matches the id.
	ErrUnknownAgent = errors.New("dispatch: unknown agent")
	// ErrRateLimited is returned when admission control rejected the
	// dispatch. The call is dropped and counted, never queued.
	ErrRateLimited = errors.New("dispatch: rate limit exceeded")
)

// Status tracks a dispatch through its lifecycle.
type Status string

const (
	// StatusRejected means admission control dropped the dispatch.
	StatusRejected Status = "rejected"
	// StatusSucceeded means the processor returned a response.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the processor raised an error.
	StatusFailed Status = "failed"
)

// Result is the structured outcome of a manual dispatch.
type Result struct {
	AgentID   string        `json:"agent_id"`
	Status    Status        `json:"status"`
	Response  string        `json:"response,omitempty"`
	Duration  time.Duration `json:"duration"`
	Published []core.Event  `json:"published,omitempty"`
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Limiter gates processor calls; nil disables admission control.
	Limiter *ratelimit.Limiter
	// Audit receives one best-effort entry per dispatch; defaults to NoOpSink.
	Audit core.AuditSink
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics optionally feeds prometheus collectors; nil disables.
	Metrics *metrics.Collector
	// SnippetLength bounds the response excerpt stored in audit entries.
	SnippetLength int
}

// Dispatcher invokes agent processing in response to bus events and manual
// triggers, enforcing loop prevention on automatic cascades. Public methods
// are safe for concurrent use.
type Dispatcher struct {
	bus       *bus.EventBus
	processor core.Processor
	limiter   *ratelimit.Limiter
	audit     core.AuditSink
	logger    logging.Logger
	metrics   *metrics.Collector
	snippet   int

	mu     sync.RWMutex
	agents map[string]core.AgentSpec
}

// New constructs a Dispatcher bound to a bus and an agent processor. A nil
// processor falls back to core.NoOpProcessor, so dispatches succeed without
// side effects.
func New(b *bus.EventBus, processor core.Processor, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Audit:         core.NoOpSink{},
		Logger:        logging.NoOpLogger{},
		SnippetLength: 200,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if processor == nil {
		processor = core.NoOpProcessor{}
	}

	return &Dispatcher{
		bus:       b,
		processor: processor,
		limiter:   opts.Limiter,
		audit:     opts.Audit,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		snippet:   opts.SnippetLength,
		agents:    make(map[string]core.AgentSpec),
	}
}

// BuildEventSubscriptions loads the agent set and rebuilds the bus
// subscription index from their declared subscriptions. The whole index is
// replaced atomically, so the operation is safely re-runnable whenever
// configuration reloads; there is no incremental diffing.
func (d *Dispatcher) BuildEventSubscriptions(specs []core.AgentSpec) {
	agents := make(map[string]core.AgentSpec, len(specs))
	byType := make(map[string][]core.Subscription)
	now := time.Now().UTC()

	for _, spec := range specs {
		agents[spec.ID] = spec
		agentID := spec.ID
		for _, eventType := range spec.Subscribes {
			byType[eventType] = append(byType[eventType], core.Subscription{
				EventType: eventType,
				AgentID:   agentID,
				Priority:  spec.Priority,
				Handler: func(ctx context.Context, ev core.Event) (any, error) {
					return d.handleBusEvent(ctx, agentID, ev)
				},
				SubscribedAt: now,
			})
		}
	}

	d.mu.Lock()
	d.agents = agents
	d.mu.Unlock()

	d.bus.ReplaceAllSubscriptions(byType)
	d.logger.Info("event subscriptions rebuilt", "agents", len(agents), "event_types", len(byType))
}

// Agent returns the loaded spec for an agent id.
func (d *Dispatcher) Agent(agentID string) (core.AgentSpec, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	spec, ok := d.agents[agentID]
	return spec, ok
}

// Agents returns a snapshot of all loaded agent specs.
func (d *Dispatcher) Agents() []core.AgentSpec {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]core.AgentSpec, 0, len(d.agents))
	for _, spec := range d.agents {
		out = append(out, spec)
	}
	return out
}

// Dispatch invokes an agent for a direct (user or timer) trigger. On success
// the agent's declared events are re-published, which is the only path that
// starts an automatic cascade: the subscribers those events reach are invoked
// auto-triggered and publish nothing further.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID, message string) (Result, error) {
	spec, ok := d.Agent(agentID)
	if !ok {
		return Result{AgentID: agentID, Status: StatusFailed}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	start := time.Now()
	response, err := d.invoke(ctx, spec, message, "manual", "user", false)
	res := Result{AgentID: agentID, Duration: time.Since(start)}
	if err != nil {
		res.Status = StatusFailed
		if errors.Is(err, ErrRateLimited) {
			res.Status = StatusRejected
		}
		return res, err
	}

	res.Status = StatusSucceeded
	res.Response = response
	for _, eventType := range spec.Publishes {
		ev, _ := d.bus.Publish(ctx, eventType, map[string]any{
			"agent_id": agentID,
			"response": util.Truncate(response, d.snippet),
		}, agentID)
		res.Published = append(res.Published, ev)
	}
	return res, nil
}

// handleBusEvent is the subscription handler bound to every agent
// subscription. It invokes the agent auto-triggered and republishes nothing,
// enforcing the loop prevention invariant.
func (d *Dispatcher) handleBusEvent(ctx context.Context, agentID string, ev core.Event) (any, error) {
	spec, ok := d.Agent(agentID)
	if !ok {
		// Subscription outlived a configuration reload that dropped the agent.
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	message := fmt.Sprintf("Event %s from %s: %v", ev.Type, ev.Source, ev.Payload)
	return d.invoke(ctx, spec, message, ev.Type, ev.Source, true)
}

// invoke runs the admission gate, the processor call and the audit record for
// one dispatch.
func (d *Dispatcher) invoke(ctx context.Context, spec core.AgentSpec, message, trigger, source string, autoTriggered bool) (string, error) {
	if d.limiter != nil && !d.limiter.TryAdmit(spec.ID) {
		d.metrics.Admission(false)
		d.audit.Record(core.AuditEntry{
			EventType: trigger,
			Source:    source,
			Data:      map[string]any{"agent_id": spec.ID, "reason": "rate_limited"},
			Flags:     core.AuditFlags{AutoTriggered: autoTriggered, Error: true},
			Timestamp: time.Now().UTC(),
		})
		return "", fmt.Errorf("%w: agent %s", ErrRateLimited, spec.ID)
	}
	d.metrics.Admission(true)

	start := time.Now()
	response, err := d.processor.Process(ctx, spec, message, autoTriggered)
	dur := time.Since(start)

	data := map[string]any{
		"agent_id": spec.ID,
		"trigger":  trigger,
		"duration": dur.String(),
	}
	if err != nil {
		data["error"] = err.Error()
		d.logger.Warn("agent dispatch failed", "agent_id", spec.ID, "trigger", trigger, "auto_triggered", autoTriggered, "error", err.Error())
	} else {
		data["response"] = util.Truncate(response, d.snippet)
		d.logger.Debug("agent dispatch completed", "agent_id", spec.ID, "trigger", trigger, "auto_triggered", autoTriggered, "duration", dur)
	}
	d.audit.Record(core.AuditEntry{
		EventType: trigger,
		Source:    source,
		Data:      data,
		Flags:     core.AuditFlags{AutoTriggered: autoTriggered, Error: err != nil},
		Timestamp: time.Now().UTC(),
	})

	if err != nil {
		return "", fmt.Errorf("agent %s processing failed: %w", spec.ID, err)
	}
	return response, nil
}
