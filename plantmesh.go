// Package plantmesh provides a high-level façade over the event bus,
// dispatcher, A2A correlator and production workflow engine enabling rapid
// construction of event-driven manufacturing agent systems. Most applications
// interact with this package by:
//  1. Creating a PlantMesh via New() (optionally overriding default collaborators)
//  2. Loading agent definitions (LoadAgents or the config package watcher)
//  3. Publishing events, dispatching agents and running order workflows
//
// The façade delegates coordination to the underlying packages while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// provider-backed processor, a durable audit sink and a structured logger.
package plantmesh

import (
	"context"
	"time"

	"github.com/plantmesh/plantmesh/a2a"
	"github.com/plantmesh/plantmesh/bus"
	"github.com/plantmesh/plantmesh/core"
	"github.com/plantmesh/plantmesh/dispatch"
	"github.com/plantmesh/plantmesh/logging"
	"github.com/plantmesh/plantmesh/metrics"
	"github.com/plantmesh/plantmesh/ratelimit"
	"github.com/plantmesh/plantmesh/workflow"
)

// Options configures the PlantMesh instance.
type Options struct {
	// HistoryCapacity bounds the bus event history.
	HistoryCapacity int

	// DefaultTimeout bounds each event delivery unless the publish
	// overrides it.
	DefaultTimeout time.Duration

	// MaxCalls and RateWindow configure provider-call admission control.
	MaxCalls   int
	RateWindow time.Duration

	// A2ATimeout bounds how long an agent-to-agent request awaits its
	// resolution.
	A2ATimeout time.Duration

	// WorkflowRetention is how long settled workflow runs stay queryable.
	WorkflowRetention time.Duration

	// Processor executes agent business logic (defaults to NoOpProcessor).
	Processor core.Processor

	// Audit receives best-effort audit entries (defaults to NoOpSink).
	Audit core.AuditSink

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger

	// Metrics optionally feeds prometheus collectors; nil disables.
	Metrics *metrics.Collector
}

// PlantMesh is the high-level façade aggregating the coordination engine's
// components.
type PlantMesh struct {
	bus        *bus.EventBus
	scheduler  *bus.Scheduler
	limiter    *ratelimit.Limiter
	correlator *a2a.Correlator
	dispatcher *dispatch.Dispatcher
	workflows  *workflow.Engine
}

// New creates a new PlantMesh instance with optional overrides. Any unset
// collaborator falls back to a safe in-process default.
func New(optFns ...func(o *Options)) *PlantMesh {
	opts := Options{
		HistoryCapacity:   200,
		DefaultTimeout:    30 * time.Second,
		MaxCalls:          30,
		RateWindow:        time.Minute,
		A2ATimeout:        30 * time.Second,
		WorkflowRetention: 5 * time.Minute,
		Processor:         core.NoOpProcessor{},
		Audit:             core.NoOpSink{},
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	eventBus := bus.New(func(o *bus.Options) {
		o.HistoryCapacity = opts.HistoryCapacity
		o.DefaultTimeout = opts.DefaultTimeout
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	limiter := ratelimit.New(opts.MaxCalls, opts.RateWindow, func(o *ratelimit.Options) {
		o.Logger = opts.Logger
	})

	correlator := a2a.New(func(o *a2a.Options) {
		o.DefaultTimeout = opts.A2ATimeout
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	dispatcher := dispatch.New(eventBus, opts.Processor, func(o *dispatch.Options) {
		o.Limiter = limiter
		o.Audit = opts.Audit
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	workflows := workflow.New(correlator, func(o *workflow.Options) {
		o.Retention = opts.WorkflowRetention
		o.Audit = opts.Audit
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	return &PlantMesh{
		bus:        eventBus,
		scheduler:  bus.NewScheduler(eventBus, func(o *bus.SchedulerOptions) { o.Logger = opts.Logger }),
		limiter:    limiter,
		correlator: correlator,
		dispatcher: dispatcher,
		workflows:  workflows,
	}
}

// LoadAgents loads the agent set and rebuilds the event subscriptions. Safe
// to call again on every configuration reload.
func (p *PlantMesh) LoadAgents(specs []core.AgentSpec) {
	p.dispatcher.BuildEventSubscriptions(specs)
}

// Publish publishes an event on the bus and returns the per-subscriber
// outcomes.
func (p *PlantMesh) Publish(ctx context.Context, eventType string, payload any, source string, optFns ...func(o *bus.PublishOptions)) (core.Event, []core.Delivery) {
	return p.bus.Publish(ctx, eventType, payload, source, optFns...)
}

// Dispatch invokes an agent for a direct user or timer trigger.
func (p *PlantMesh) Dispatch(ctx context.Context, agentID, message string) (dispatch.Result, error) {
	return p.dispatcher.Dispatch(ctx, agentID, message)
}

// AnalyzeOrder runs the production workflow for one order.
func (p *PlantMesh) AnalyzeOrder(ctx context.Context, orderID string) (workflow.Workflow, error) {
	return p.workflows.Run(ctx, orderID)
}

// Bus returns the underlying event bus.
func (p *PlantMesh) Bus() *bus.EventBus { return p.bus }

// Scheduler returns the delayed-publish scheduler.
func (p *PlantMesh) Scheduler() *bus.Scheduler { return p.scheduler }

// Limiter returns the provider-call rate limiter.
func (p *PlantMesh) Limiter() *ratelimit.Limiter { return p.limiter }

// Correlator returns the agent-to-agent correlator.
func (p *PlantMesh) Correlator() *a2a.Correlator { return p.correlator }

// Dispatcher returns the agent dispatcher.
func (p *PlantMesh) Dispatcher() *dispatch.Dispatcher { return p.dispatcher }

// Workflows returns the production workflow engine.
func (p *PlantMesh) Workflows() *workflow.Engine { return p.workflows }

// Close stops the scheduler and waits for queued delayed publishes.
func (p *PlantMesh) Close() {
	p.scheduler.Close()
}
