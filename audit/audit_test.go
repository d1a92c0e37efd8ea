package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantmesh/plantmesh/core"
)

func entry(eventType string) core.AuditEntry {
	return core.AuditEntry{
		EventType: eventType,
		Source:    "test",
		Data:      map[string]any{"agent_id": "oee-agent"},
		Timestamp: time.Now().UTC(),
	}
}

func TestFileSink_WritesOneJSONDocumentPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)

	s.Record(entry("oee/updated"))
	s.Record(entry("workflow/completed"))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []core.AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e core.AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		lines = append(lines, e)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "oee/updated", lines[0].EventType)
	assert.Equal(t, "workflow/completed", lines[1].EventType)
	assert.Equal(t, uint64(0), s.Dropped())
}

func TestFileSink_OverflowDropsInsteadOfBlocking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewFileSink(path, func(o *FileSinkOptions) { o.BufferSize = 1 })
	require.NoError(t, err)

	// Flood faster than the writer can drain; Record must never block.
	done := make(chan struct{})
	go func() {
		for n := 0; n < 10000; n++ {
			s.Record(entry("flood"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	require.NoError(t, s.Close())
}

func TestInMemorySink_CollectsEntries(t *testing.T) {
	s := NewInMemorySink()

	s.Record(entry("a"))
	s.Record(entry("b"))

	assert.Equal(t, 2, s.Len())
	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].EventType)

	// Entries returns a copy; mutating it does not affect the sink.
	entries[0].EventType = "mutated"
	assert.Equal(t, "a", s.Entries()[0].EventType)
}
