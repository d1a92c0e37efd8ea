package core

import "time"

// AuditFlags classifies an audit entry.
type AuditFlags struct {
	// AutoTriggered marks entries produced by an automatic event cascade.
	AutoTriggered bool `json:"auto_triggered,omitempty"`
	// Error marks entries recording a failed operation.
	Error bool `json:"error,omitempty"`
	// Workflow marks entries produced by the production workflow engine.
	Workflow bool `json:"workflow,omitempty"`
}

// AuditEntry is a fire-and-forget record handed to the audit sink.
type AuditEntry struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
	Flags     AuditFlags     `json:"flags,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditSink accepts audit entries best-effort. Implementations must never
// block the caller; a slow or failing sink drops entries rather than stalling
// dispatch or workflow execution.
type AuditSink interface {
	Record(entry AuditEntry)
}

// NoOpSink discards all audit entries.
type NoOpSink struct{}

// Record implements AuditSink.
func (NoOpSink) Record(AuditEntry) {}
