package audit

import (
	"sync"

	"github.com/plantmesh/plantmesh/core"
)

// InMemorySink collects audit entries in a process-local slice. Best suited
// for tests and ephemeral demo setups. Safe for concurrent use.
type InMemorySink struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

// NewInMemorySink constructs an empty in-memory sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// Record implements core.AuditSink.
func (s *InMemorySink) Record(entry core.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// Entries returns a copy of all recorded entries in arrival order.
func (s *InMemorySink) Entries() []core.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of recorded entries.
func (s *InMemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
