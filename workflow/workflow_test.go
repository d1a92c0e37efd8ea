package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantmesh/plantmesh/audit"
)

// stubCaller answers A2A requests from canned per-service responses.
type stubCaller struct {
	mu        sync.Mutex
	responses map[string]any
	errs      map[string]error
	delays    map[string]time.Duration
	calls     []string
}

func newStubCaller() *stubCaller {
	return &stubCaller{
		responses: make(map[string]any),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
	}
}

func (s *stubCaller) Request(ctx context.Context, target, action string, payload any) (any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, target)
	response, err, delay := s.responses[target], s.errs[target], s.delays[target]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (s *stubCaller) callsTo(target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == target {
			n++
		}
	}
	return n
}

func TestRun_CompliantOrderSkipsAssessment(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "COMPLIANT"}
	caller.responses[ServiceStatus] = map[string]any{"response": "status recorded"}
	e := New(caller)

	wf, err := e.Run(context.Background(), "PO-1")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, wf.Status)
	assert.Equal(t, FinalApproved, wf.FinalStatus)
	require.Len(t, wf.Steps, 3)
	assert.Equal(t, StepCompleted, wf.Steps[0].Status)
	assert.Equal(t, StepSkipped, wf.Steps[1].Status)
	assert.NotEmpty(t, wf.Steps[1].Result["reason"])
	assert.Equal(t, StepCompleted, wf.Steps[2].Status)
	assert.Equal(t, 0, caller.callsTo(ServiceAssessment))
	assert.Equal(t, 1, caller.callsTo(ServiceStatus), "status update always runs")
}

func TestRun_BlockedComplianceStillRunsAssessment(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "Order BLOCKED pending deviation review"}
	caller.responses[ServiceAssessment] = map[string]any{"response": "batch within tolerance"}
	caller.responses[ServiceStatus] = "ok"
	e := New(caller)

	wf, err := e.Run(context.Background(), "PO-2")
	require.NoError(t, err)

	// BLOCKED is itself a critical keyword, so both rules fire: assessment
	// is attempted and the final status stays BLOCKED.
	assert.Equal(t, 1, caller.callsTo(ServiceAssessment))
	assert.Equal(t, FinalBlocked, wf.FinalStatus)
	assert.Equal(t, StepCompleted, wf.Steps[1].Status)
}

func TestRun_ComplianceFallbackDoesNotAbort(t *testing.T) {
	caller := newStubCaller()
	caller.errs[ServiceCompliance] = errors.New("connection refused")
	caller.responses[ServiceStatus] = "ok"
	e := New(caller)

	wf, err := e.Run(context.Background(), "PO-3")
	require.NoError(t, err)

	require.Len(t, wf.Steps, 3, "workflow proceeds past the failed collaborator")
	step1 := wf.Steps[0]
	assert.Equal(t, StepCompleted, step1.Status, "fallback is recorded as completed, not failed")
	assert.Equal(t, true, step1.Result["fallback"])
	assert.Equal(t, "error", step1.Result["status"])
	assert.Equal(t, FinalReviewRequired, wf.FinalStatus, "error-status step escalates to review")
}

func TestRun_AssessmentBlockKeyword(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "CRITICAL deviation in sterilization lot"}
	caller.responses[ServiceAssessment] = map[string]any{"response": "recommend BLOCK of shipment"}
	caller.responses[ServiceStatus] = "ok"
	e := New(caller)

	wf, err := e.Run(context.Background(), "PO-4")
	require.NoError(t, err)
	assert.Equal(t, FinalBlocked, wf.FinalStatus, "substring BLOCK in assessment text blocks the order")
}

func TestRun_WarningYieldsDelayed(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "WARNING: supplier certificate expires soon"}
	caller.responses[ServiceAssessment] = map[string]any{"response": "no findings"}
	caller.responses[ServiceStatus] = "ok"
	e := New(caller)

	wf, err := e.Run(context.Background(), "PO-5")
	require.NoError(t, err)
	assert.Equal(t, FinalDelayed, wf.FinalStatus)
}

func TestRun_StatusServiceFailureCannotChangeDisposition(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "COMPLIANT"}
	caller.errs[ServiceStatus] = errors.New("mes offline")
	e := New(caller)

	wf, err := e.Run(context.Background(), "PO-6")
	require.NoError(t, err)

	assert.Equal(t, FinalApproved, wf.FinalStatus, "disposition derives from steps 1-2 only")
	step3 := wf.Steps[2]
	assert.Equal(t, StepCompleted, step3.Status)
	assert.Equal(t, true, step3.Result["fallback"])
}

func TestDeriveFinalStatus_PrecedenceOrder(t *testing.T) {
	completed := func(text string) Step {
		return Step{Status: StepCompleted, Result: map[string]any{"response": text}}
	}
	fallback := Step{Status: StepCompleted, Result: map[string]any{"fallback": true, "status": "error", "message": "down"}}
	skipped := Step{Status: StepSkipped, Result: map[string]any{"reason": "no critical findings"}}

	tests := []struct {
		name       string
		compliance Step
		assessment Step
		want       FinalStatus
	}{
		{"compliance blocked wins over everything", completed("BLOCKED and DELAYED"), fallback, FinalBlocked},
		{"assessment block", completed("CRITICAL"), completed("BLOCK it"), FinalBlocked},
		{"skipped assessment contributes no findings", completed("CRITICAL"), skipped, FinalApproved},
		{"error status beats delayed", completed("CRITICAL DELAYED"), fallback, FinalReviewRequired},
		{"delayed keyword", completed("shipment DELAYED"), skipped, FinalDelayed},
		{"warning keyword in assessment", completed("CRITICAL"), completed("WARNING: retest"), FinalDelayed},
		{"clean run approves", completed("COMPLIANT"), skipped, FinalApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveFinalStatus(tt.compliance, tt.assessment))
		})
	}
}

func TestAssessmentRequired_CriticalKeywords(t *testing.T) {
	assert.True(t, assessmentRequired(""), "absent text requires assessment")
	assert.True(t, assessmentRequired("lot in QUARANTINE"))
	assert.True(t, assessmentRequired("high risk supplier"), "matching is case-insensitive")
	assert.False(t, assessmentRequired("COMPLIANT"))
	assert.False(t, assessmentRequired("all standards met"))
}

func TestCancel_RemovesRunImmediately(t *testing.T) {
	caller := newStubCaller()
	caller.delays[ServiceCompliance] = 200 * time.Millisecond
	caller.responses[ServiceCompliance] = map[string]any{"response": "COMPLIANT"}
	caller.responses[ServiceStatus] = "ok"
	e := New(caller)

	done := make(chan Workflow, 1)
	go func() {
		wf, err := e.Run(context.Background(), "PO-7")
		require.NoError(t, err)
		done <- wf
	}()

	// Wait for the run to appear in the active set, then cancel mid-step.
	var id string
	require.Eventually(t, func() bool {
		active := e.Active()
		if len(active) == 0 {
			return false
		}
		id = active[0].ID
		return true
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Cancel(id, "operator abort"))
	assert.Empty(t, e.Active(), "cancellation removes the run immediately")

	wf := <-done
	assert.Equal(t, StatusCancelled, wf.Status)
	assert.Equal(t, "operator abort", wf.CancelReason)
	assert.Equal(t, 0, caller.callsTo(ServiceStatus), "no further steps after cancellation")
}

func TestCancel_UnknownWorkflow(t *testing.T) {
	e := New(newStubCaller())
	assert.ErrorIs(t, e.Cancel("missing", "whatever"), ErrWorkflowNotFound)
}

func TestStats_RunningAggregates(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "COMPLIANT"}
	caller.responses[ServiceStatus] = "ok"
	e := New(caller)

	for n := 0; n < 3; n++ {
		_, err := e.Run(context.Background(), "PO-8")
		require.NoError(t, err)
	}

	s := e.Stats()
	assert.Equal(t, uint64(3), s.Total)
	assert.Equal(t, uint64(3), s.Completed)
	assert.Equal(t, uint64(0), s.Failed)
	assert.Equal(t, 1.0, s.SuccessRate)
	assert.GreaterOrEqual(t, s.AvgDuration, time.Duration(0))
}

func TestRun_RetentionRemovesSettledRuns(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "COMPLIANT"}
	caller.responses[ServiceStatus] = "ok"
	e := New(caller, func(o *Options) { o.Retention = 20 * time.Millisecond })

	wf, err := e.Run(context.Background(), "PO-9")
	require.NoError(t, err)

	_, ok := e.Get(wf.ID)
	assert.True(t, ok, "settled run stays queryable during retention")

	require.Eventually(t, func() bool {
		_, ok := e.Get(wf.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "settled run garbage-collected after retention")
}

func TestRun_AuditsCompletion(t *testing.T) {
	caller := newStubCaller()
	caller.responses[ServiceCompliance] = map[string]any{"response": "COMPLIANT"}
	caller.responses[ServiceStatus] = "ok"
	sink := audit.NewInMemorySink()
	e := New(caller, func(o *Options) { o.Audit = sink })

	wf, err := e.Run(context.Background(), "PO-10")
	require.NoError(t, err)

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "workflow/completed", entries[0].EventType)
	assert.True(t, entries[0].Flags.Workflow)
	assert.Equal(t, wf.ID, entries[0].Data["workflow_id"])
	assert.Equal(t, string(FinalApproved), entries[0].Data["final_status"])
}
