package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/plantmesh/plantmesh/core"
	"github.com/plantmesh/plantmesh/logging"
	"github.com/plantmesh/plantmesh/metrics"
)

// Target service roles reached over the A2A correlator. Each must be assumed
// to fail independently and intermittently.
const (
	ServiceCompliance = "compliance"
	ServiceAssessment = "assessment"
	ServiceStatus     = "status"
)

// Step names, in fixed execution order. Steps 1 and 3 always run.
const (
	StepComplianceCheck = "compliance_check"
	StepAssessmentCheck = "assessment_check"
	StepStatusUpdate    = "status_update"
)

// ErrWorkflowNotFound is returned by Cancel for an id not in the active set.
var ErrWorkflowNotFound = errors.New("workflow: not found")

// Status is the lifecycle state of a workflow run.
type Status string

const (
	// StatusRunning marks a run between creation and its first step.
	StatusRunning Status = "running"
	// StatusComplianceCheck marks step 1 in flight.
	StatusComplianceCheck Status = "compliance_check"
	// StatusAssessmentCheck marks step 2 in flight.
	StatusAssessmentCheck Status = "assessment_check"
	// StatusStatusUpdate marks step 3 in flight.
	StatusStatusUpdate Status = "status_update"
	// StatusCompleted marks a run whose three steps settled.
	StatusCompleted Status = "completed"
	// StatusFailed marks a run aborted by an unexpected internal error.
	StatusFailed Status = "failed"
	// StatusCancelled marks a run cancelled by id.
	StatusCancelled Status = "cancelled"
)

// FinalStatus is the terminal disposition reported for an order.
type FinalStatus string

const (
	// FinalApproved clears the order.
	FinalApproved FinalStatus = "APPROVED"
	// FinalBlocked stops the order.
	FinalBlocked FinalStatus = "BLOCKED"
	// FinalDelayed defers the order.
	FinalDelayed FinalStatus = "DELAYED"
	// FinalReviewRequired escalates the order to a human.
	FinalReviewRequired FinalStatus = "REVIEW_REQUIRED"
)

// StepStatus is the recorded outcome of a single step.
type StepStatus string

const (
	// StepCompleted covers both successful calls and absorbed fallbacks.
	StepCompleted StepStatus = "completed"
	// StepSkipped marks the assessment step when no critical keyword fired.
	StepSkipped StepStatus = "skipped"
	// StepFailed is reserved for outcomes that were neither absorbed nor skipped.
	StepFailed StepStatus = "failed"
)

// criticalKeywords trigger the conditional assessment step when present in
// the compliance result text. Matching is case-insensitive substring.
var criticalKeywords = []string{"CRITICAL", "BLOCKED", "NON-COMPLIANT", "QUARANTINE", "HIGH RISK"}

// Step records one executed (or skipped) workflow step.
type Step struct {
	Ordinal  int            `json:"ordinal"`
	Name     string         `json:"name"`
	Status   StepStatus     `json:"status"`
	Result   map[string]any `json:"result,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Workflow is one production workflow run for a single order.
type Workflow struct {
	ID           string      `json:"id"`
	OrderID      string      `json:"order_id"`
	Status       Status      `json:"status"`
	Steps        []Step      `json:"steps"`
	StartTime    time.Time   `json:"start_time"`
	FinalStatus  FinalStatus `json:"final_status,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
}

// Stats is a snapshot of the engine's running aggregates.
type Stats struct {
	Total       uint64        `json:"total"`
	Completed   uint64        `json:"completed"`
	Failed      uint64        `json:"failed"`
	AvgDuration time.Duration `json:"avg_duration"`
	SuccessRate float64       `json:"success_rate"`
}

// ServiceCaller forwards an action to a named target service and awaits its
// single resolution. *a2a.Correlator satisfies it.
type ServiceCaller interface {
	Request(ctx context.Context, targetAgent, action string, payload any) (any, error)
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Retention is how long a completed or failed run stays queryable in
	// the active set before garbage collection.
	Retention time.Duration
	// RequiredStandards is the fixed standards set sent with every
	// compliance validation.
	RequiredStandards []string
	// Audit receives best-effort completion/cancellation entries.
	Audit core.AuditSink
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics optionally feeds prometheus collectors; nil disables.
	Metrics *metrics.Collector
}

// Engine orchestrates production workflow runs. Multiple runs may be in
// flight concurrently, but each run's three steps execute strictly in
// sequence. Public methods are safe for concurrent use.
type Engine struct {
	caller    ServiceCaller
	retention time.Duration
	standards []string
	audit     core.AuditSink
	logger    logging.Logger
	metrics   *metrics.Collector

	mu            sync.Mutex
	active        map[string]*Workflow
	total         uint64
	completed     uint64
	failed        uint64
	totalDuration time.Duration
}

// New constructs an Engine calling the three target services through caller.
func New(caller ServiceCaller, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Retention:         5 * time.Minute,
		RequiredStandards: []string{"ISO-9001", "IATF-16949", "GMP"},
		Audit:             core.NoOpSink{},
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		caller:    caller,
		retention: opts.Retention,
		standards: opts.RequiredStandards,
		audit:     opts.Audit,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		active:    make(map[string]*Workflow),
	}
}

// Run executes the full pipeline for one order and returns the settled run.
// Collaborator failures are absorbed into fallback step results and never
// surface here; the returned error is reserved for unexpected internal
// failures, after which the run is marked failed and removed from the active
// set.
func (e *Engine) Run(ctx context.Context, orderID string) (wf Workflow, err error) {
	run := &Workflow{
		ID:        core.NewID(),
		OrderID:   orderID,
		Status:    StatusRunning,
		StartTime: time.Now().UTC(),
	}

	e.mu.Lock()
	e.active[run.ID] = run
	e.total++
	e.mu.Unlock()

	logger := e.logger
	logger.Info("workflow started", "workflow_id", run.ID, "order_id", orderID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow %s: internal error: %v", run.ID, r)
			e.mu.Lock()
			run.Status = StatusFailed
			e.failed++
			delete(e.active, run.ID)
			wf = snapshot(run)
			e.mu.Unlock()
			logger.Error("workflow failed", "workflow_id", run.ID, "order_id", orderID, "error", err.Error())
		}
	}()

	// Step 1: compliance validation, always executed.
	if !e.beginStep(run, StatusComplianceCheck) {
		return e.finishCancelled(run), nil
	}
	compliance := e.callStep(ctx, run, 1, StepComplianceCheck, ServiceCompliance, "validate_order", map[string]any{
		"order_id":           orderID,
		"required_standards": e.standards,
	})
	e.recordStep(run, compliance)

	// Step 2: batch assessment, required only when the compliance text
	// carries a critical keyword (or is absent entirely).
	if !e.beginStep(run, StatusAssessmentCheck) {
		return e.finishCancelled(run), nil
	}
	var assessment Step
	complianceText := resultText(compliance.Result)
	if assessmentRequired(complianceText) {
		assessment = e.callStep(ctx, run, 2, StepAssessmentCheck, ServiceAssessment, "assess_batch", map[string]any{
			"order_id":           orderID,
			"compliance_summary": complianceText,
		})
	} else {
		assessment = Step{
			Ordinal: 2,
			Name:    StepAssessmentCheck,
			Status:  StepSkipped,
			Result:  map[string]any{"reason": "no critical findings in compliance result"},
		}
		logger.Debug("assessment skipped", "workflow_id", run.ID, "order_id", orderID)
	}
	e.recordStep(run, assessment)

	// The disposition is derived from steps 1-2; step 3 reports it and its
	// own failure cannot change it.
	final := deriveFinalStatus(compliance, assessment)

	// Step 3: status report, always executed.
	if !e.beginStep(run, StatusStatusUpdate) {
		return e.finishCancelled(run), nil
	}
	status := e.callStep(ctx, run, 3, StepStatusUpdate, ServiceStatus, "update_status", map[string]any{
		"order_id":     orderID,
		"workflow_id":  run.ID,
		"final_status": string(final),
	})
	e.recordStep(run, status)

	dur := time.Since(run.StartTime)
	e.mu.Lock()
	if run.Status == StatusCancelled {
		e.mu.Unlock()
		return e.finishCancelled(run), nil
	}
	run.Status = StatusCompleted
	run.FinalStatus = final
	e.completed++
	e.totalDuration += dur
	wf = snapshot(run)
	e.mu.Unlock()

	e.metrics.WorkflowFinished(string(final), dur)
	e.audit.Record(core.AuditEntry{
		EventType: "workflow/completed",
		Source:    "production_workflow",
		Data: map[string]any{
			"workflow_id":  run.ID,
			"order_id":     orderID,
			"final_status": string(final),
			"duration":     dur.String(),
		},
		Flags:     core.AuditFlags{Workflow: true},
		Timestamp: time.Now().UTC(),
	})
	logger.Info("workflow completed", "workflow_id", run.ID, "order_id", orderID, "final_status", string(final), "duration", dur)

	e.scheduleRemoval(run.ID)
	return wf, nil
}

// Cancel removes a run from the active set immediately, regardless of any
// in-flight step, and records the reason. The running pipeline stops before
// its next step.
func (e *Engine) Cancel(workflowID, reason string) error {
	e.mu.Lock()
	run, ok := e.active[workflowID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	run.Status = StatusCancelled
	run.CancelReason = reason
	delete(e.active, workflowID)
	orderID := run.OrderID
	e.mu.Unlock()

	e.audit.Record(core.AuditEntry{
		EventType: "workflow/cancelled",
		Source:    "production_workflow",
		Data:      map[string]any{"workflow_id": workflowID, "order_id": orderID, "reason": reason},
		Flags:     core.AuditFlags{Workflow: true},
		Timestamp: time.Now().UTC(),
	})
	e.logger.Info("workflow cancelled", "workflow_id", workflowID, "order_id", orderID, "reason", reason)
	return nil
}

// Get returns a snapshot of an active (or retained) run.
func (e *Engine) Get(workflowID string) (Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.active[workflowID]
	if !ok {
		return Workflow{}, false
	}
	return snapshot(run), true
}

// Active returns snapshots of all runs currently in the active set.
func (e *Engine) Active() []Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Workflow, 0, len(e.active))
	for _, run := range e.active {
		out = append(out, snapshot(run))
	}
	return out
}

// Stats returns the engine's running aggregates.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{Total: e.total, Completed: e.completed, Failed: e.failed}
	if e.completed > 0 {
		s.AvgDuration = e.totalDuration / time.Duration(e.completed)
	}
	if finished := e.completed + e.failed; finished > 0 {
		s.SuccessRate = float64(e.completed) / float64(finished)
	}
	return s
}

// beginStep advances the run's status, refusing if the run was cancelled.
func (e *Engine) beginStep(run *Workflow, status Status) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if run.Status == StatusCancelled {
		return false
	}
	run.Status = status
	return true
}

// callStep performs one A2A service call, absorbing collaborator failure into
// a structured fallback result flagged fallback:true. The step is recorded as
// completed either way; failure is absorbed, not propagated.
func (e *Engine) callStep(ctx context.Context, run *Workflow, ordinal int, name, service, action string, payload any) Step {
	start := time.Now()
	result, err := e.caller.Request(ctx, service, action, payload)
	step := Step{Ordinal: ordinal, Name: name, Status: StepCompleted, Duration: time.Since(start)}

	if err != nil {
		step.Result = map[string]any{
			"fallback": true,
			"status":   "error",
			"message":  fmt.Sprintf("%s service unavailable: %v", service, err),
		}
		e.logger.Warn("workflow step fell back", "workflow_id", run.ID, "step", name, "service", service, "error", err.Error())
		return step
	}

	step.Result = asResultMap(result)
	return step
}

func (e *Engine) recordStep(run *Workflow, step Step) {
	e.mu.Lock()
	run.Steps = append(run.Steps, step)
	e.mu.Unlock()
	e.logger.Debug("workflow step recorded", "workflow_id", run.ID, "step", step.Name, "status", string(step.Status), "duration", step.Duration)
}

func (e *Engine) finishCancelled(run *Workflow) Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger.Debug("workflow stopped after cancellation", "workflow_id", run.ID)
	return snapshot(run)
}

// scheduleRemoval garbage-collects a settled run after the retention delay.
// Cancellation may have removed it already; the delete is then a no-op.
func (e *Engine) scheduleRemoval(workflowID string) {
	time.AfterFunc(e.retention, func() {
		e.mu.Lock()
		delete(e.active, workflowID)
		e.mu.Unlock()
	})
}

func snapshot(run *Workflow) Workflow {
	out := *run
	out.Steps = make([]Step, len(run.Steps))
	copy(out.Steps, run.Steps)
	return out
}

// assessmentRequired applies the critical-keyword rule: assessment runs
// unless the compliance text is present and contains none of the critical
// keywords.
func assessmentRequired(complianceText string) bool {
	if complianceText == "" {
		return true
	}
	upper := strings.ToUpper(complianceText)
	for _, kw := range criticalKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// deriveFinalStatus evaluates the disposition rules in fixed precedence
// order, first match wins. Matching is deliberately substring based
// ("BLOCK" matches inside "BLOCKED"): the precedence and matching semantics
// carry regulatory weight and must not change without product sign-off.
func deriveFinalStatus(compliance, assessment Step) FinalStatus {
	complianceText := strings.ToUpper(resultText(compliance.Result))
	if strings.Contains(complianceText, "BLOCKED") {
		return FinalBlocked
	}

	if assessment.Status == StepCompleted {
		assessmentText := strings.ToUpper(resultText(assessment.Result))
		if strings.Contains(assessmentText, "BLOCK") {
			return FinalBlocked
		}
	}

	for _, step := range []Step{compliance, assessment} {
		if status, _ := step.Result["status"].(string); status == "error" {
			return FinalReviewRequired
		}
	}

	for _, step := range []Step{compliance, assessment} {
		text := strings.ToUpper(resultText(step.Result))
		if strings.Contains(text, "DELAYED") || strings.Contains(text, "WARNING") {
			return FinalDelayed
		}
	}

	return FinalApproved
}

// asResultMap normalizes an opaque service result into a step result map.
func asResultMap(result any) map[string]any {
	switch v := result.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		return map[string]any{"response": v}
	default:
		return map[string]any{"response": fmt.Sprintf("%v", v)}
	}
}

// resultText extracts the textual payload the keyword rules match against.
func resultText(result map[string]any) string {
	for _, key := range []string{"response", "text", "message"} {
		if s, ok := result[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
