package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/plantmesh/plantmesh/core"
)

// MockProcessor is a lightweight in-memory Processor useful for tests and
// examples. Responses are canned per agent id; unknown agents receive a
// generated echo response. Safe for concurrent use.
type MockProcessor struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []MockCall
}

// MockCall records one Process invocation for assertions.
type MockCall struct {
	AgentID       string
	Message       string
	AutoTriggered bool
}

// NewMockProcessor constructs an empty MockProcessor.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		responses: make(map[string]string),
		errs:      make(map[string]error),
	}
}

// AddResponse registers a deterministic canned response for an agent id.
func (m *MockProcessor) AddResponse(agentID, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agentID] = response
}

// FailWith makes Process return err for the given agent id.
func (m *MockProcessor) FailWith(agentID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[agentID] = err
}

// Process implements core.Processor.
func (m *MockProcessor) Process(_ context.Context, agent core.AgentSpec, message string, autoTriggered bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{AgentID: agent.ID, Message: message, AutoTriggered: autoTriggered})
	if err, ok := m.errs[agent.ID]; ok {
		return "", err
	}
	if response, ok := m.responses[agent.ID]; ok {
		return response, nil
	}
	return fmt.Sprintf("[%s] processed: %s", agent.ID, message), nil
}

// Calls returns a copy of all recorded invocations in arrival order.
func (m *MockProcessor) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}
