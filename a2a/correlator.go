package a2a

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

var (
	// ErrNoHandler is returned when the target agent has no registered handler.
	ErrNoHandler = errors.New("a2a: no handler registered for target agent")
	// ErrRequestTimeout is returned when no resolution arrived in time.
	ErrRequestTimeout = errors.New("a2a: request timed out awaiting resolution")
	// ErrUnknownRequest is returned by Resolve for an unknown or already
	// completed request id.
	ErrUnknownRequest = errors.New("a2a: unknown request id")
	// ErrDuplicateResolution is returned by Resolve when the request was
	// already resolved; the first resolution stands.
	ErrDuplicateResolution = errors.New("a2a: request already resolved")
)

// Request is the record forwarded to a target agent's handler.
type Request struct {
	RequestID   string    `json:"request_id"`
	TargetAgent string    `json:"target_agent"`
	Action      string    `json:"action"`
	Payload     any       `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ServiceHandler receives a forwarded request. The handler (or whatever
// asynchronous machinery it hands off to) must eventually call
// Correlator.Resolve with the request id; returning from the handler alone
// resolves nothing.
type ServiceHandler func(ctx context.Context, req Request)

// resolution is the single outcome delivered to the awaiting caller.
type resolution struct {
	result any
	err    error
}

type pendingRequest struct {
	done     chan resolution
	resolved bool
}

// Options holds configuration overrides passed to New().
type Options struct {
	// DefaultTimeout bounds how long a request awaits its resolution.
	DefaultTimeout time.Duration
	// Logger receives correlation protocol violations; defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics optionally feeds prometheus collectors; nil disables.
	Metrics *metrics.Collector
}

// Correlator matches asynchronous resolutions to awaiting requests. At most
// one resolution is honored per request id; later attempts are discarded.
// Safe for concurrent use.
type Correlator struct {
	defaultTimeout time.Duration
	logger         logging.Logger
	metrics        *metrics.Collector

	mu       sync.Mutex
	handlers map[string]ServiceHandler
	pending  map[string]*pendingRequest
}

// New constructs a Correlator with optional overrides.
func New(optFns ...func(o *Options)) *Correlator {
	opts := Options{
		DefaultTimeout: 30 * time.Second,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Correlator{
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		handlers:       make(map[string]ServiceHandler),
		pending:        make(map[string]*pendingRequest),
	}
}

// RegisterHandler makes a target agent reachable for requests. Registering
// the same agent id again replaces the previous handler.
func (c *Correlator) RegisterHandler(agentID string, h ServiceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[agentID] = h
}

// UnregisterHandler removes a target agent's handler; no-op if absent.
func (c *Correlator) UnregisterHandler(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, agentID)
}

// Request forwards an action to the target agent's handler and awaits exactly
// one resolution. It returns the resolved result, the resolution failure, a
// timeout error if nothing arrived within the correlator's default timeout,
// or the context error if ctx ended first. The pending entry is purged on
// every exit path.
func (c *Correlator) Request(ctx context.Context, targetAgent, action string, payload any) (any, error) {
	c.mu.Lock()
	handler, ok := c.handlers[targetAgent]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, targetAgent)
	}

	req := Request{
		RequestID:   core.NewID(),
		TargetAgent: targetAgent,
		Action:      action,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	entry := &pendingRequest{done: make(chan resolution, 1)}
	c.pending[req.RequestID] = entry
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}()

	go handler(ctx, req)

	timer := time.NewTimer(c.defaultTimeout)
	defer timer.Stop()

	select {
	case res := <-entry.done:
		if res.err != nil {
			c.metrics.A2ARequest("failed")
		} else {
			c.metrics.A2ARequest("resolved")
		}
		return res.result, res.err
	case <-timer.C:
		c.metrics.A2ARequest("timeout")
		c.logger.Warn("a2a request unresolved before timeout", "request_id", req.RequestID, "target_agent", targetAgent, "action", action)
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, req.RequestID, c.defaultTimeout)
	case <-ctx.Done():
		c.metrics.A2ARequest("cancelled")
		return nil, ctx.Err()
	}
}

// Resolve delivers the outcome for a pending request. Only the first call per
// request id is honored; duplicates return ErrDuplicateResolution and are
// otherwise ignored. Resolving an unknown (or already purged) id returns
// ErrUnknownRequest.
func (c *Correlator) Resolve(requestID string, success bool, result any, errorMessage string) error {
	c.mu.Lock()
	entry, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("a2a resolution for unknown request", "request_id", requestID)
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	if entry.resolved {
		c.mu.Unlock()
		c.logger.Warn("duplicate a2a resolution ignored", "request_id", requestID)
		return fmt.Errorf("%w: %s", ErrDuplicateResolution, requestID)
	}
	entry.resolved = true
	c.mu.Unlock()

	res := resolution{result: result}
	if !success {
		res.err = fmt.Errorf("a2a: request %s failed: %s", requestID, errorMessage)
	}
	entry.done <- res
	return nil
}

// PendingCount returns the number of requests currently awaiting resolution.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
