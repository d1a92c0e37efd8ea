package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the engine's prometheus instruments. Construct one with
// New and register it on a prometheus.Registerer; all engine components
// accept it via their options and tolerate nil.
type Collector struct {
	eventsPublished  *prometheus.CounterVec
	eventsProcessed  prometheus.Counter
	deliveriesFailed prometheus.Counter
	deliveryDuration prometheus.Histogram

	admissions *prometheus.CounterVec

	a2aRequests *prometheus.CounterVec

	workflowRuns     *prometheus.CounterVec
	workflowDuration prometheus.Histogram
}

// New creates the engine collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plantmesh",
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Events published on the bus, by event type.",
		}, []string{"event_type"}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plantmesh",
			Subsystem: "bus",
			Name:      "deliveries_total",
			Help:      "Per-subscriber deliveries attempted.",
		}),
		deliveriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plantmesh",
			Subsystem: "bus",
			Name:      "deliveries_failed_total",
			Help:      "Per-subscriber deliveries that errored or timed out.",
		}),
		deliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plantmesh",
			Subsystem: "bus",
			Name:      "delivery_duration_seconds",
			Help:      "Handler execution time per delivery.",
			Buckets:   prometheus.DefBuckets,
		}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plantmesh",
			Subsystem: "ratelimit",
			Name:      "admissions_total",
			Help:      "Rate limiter admission decisions.",
		}, []string{"decision"}),
		a2aRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plantmesh",
			Subsystem: "a2a",
			Name:      "requests_total",
			Help:      "A2A requests by outcome (resolved, failed, timeout).",
		}, []string{"outcome"}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plantmesh",
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Production workflow runs by final status.",
		}, []string{"final_status"}),
		workflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plantmesh",
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "End-to-end production workflow duration.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		c.eventsPublished,
		c.eventsProcessed,
		c.deliveriesFailed,
		c.deliveryDuration,
		c.admissions,
		c.a2aRequests,
		c.workflowRuns,
		c.workflowDuration,
	)

	return c
}

// EventPublished records a publish of the given event type.
func (c *Collector) EventPublished(eventType string) {
	if c == nil {
		return
	}
	c.eventsPublished.WithLabelValues(eventType).Inc()
}

// DeliveryCompleted records one per-subscriber delivery outcome.
func (c *Collector) DeliveryCompleted(dur time.Duration, success bool) {
	if c == nil {
		return
	}
	c.eventsProcessed.Inc()
	c.deliveryDuration.Observe(dur.Seconds())
	if !success {
		c.deliveriesFailed.Inc()
	}
}

// Admission records a rate limiter decision.
func (c *Collector) Admission(admitted bool) {
	if c == nil {
		return
	}
	decision := "admitted"
	if !admitted {
		decision = "rejected"
	}
	c.admissions.WithLabelValues(decision).Inc()
}

// A2ARequest records the outcome of an agent-to-agent request.
func (c *Collector) A2ARequest(outcome string) {
	if c == nil {
		return
	}
	c.a2aRequests.WithLabelValues(outcome).Inc()
}

// WorkflowFinished records a completed or failed workflow run.
func (c *Collector) WorkflowFinished(finalStatus string, dur time.Duration) {
	if c == nil {
		return
	}
	c.workflowRuns.WithLabelValues(finalStatus).Inc()
	c.workflowDuration.Observe(dur.Seconds())
}
