package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/plantmesh/plantmesh/core"
	"github.com/plantmesh/plantmesh/logging"
)

// FileSinkOptions holds configuration overrides passed to NewFileSink().
type FileSinkOptions struct {
	// BufferSize bounds the number of entries queued for writing; entries
	// beyond it are dropped and counted.
	BufferSize int
	// Logger receives writer failures; defaults to NoOpLogger.
	Logger logging.Logger
}

// FileSink appends audit entries to a file as one JSON document per line.
// Record never blocks: entries are queued on a bounded channel and written by
// a background goroutine, with overflow dropped and counted.
type FileSink struct {
	file    *os.File
	logger  logging.Logger
	queue   chan core.AuditEntry
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFileSink opens (or creates) the audit file in append mode and starts the
// writer goroutine.
func NewFileSink(path string, optFns ...func(o *FileSinkOptions)) (*FileSink, error) {
	opts := FileSinkOptions{
		BufferSize: 256,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	s := &FileSink{
		file:   file,
		logger: opts.Logger,
		queue:  make(chan core.AuditEntry, opts.BufferSize),
	}

	s.wg.Add(1)
	go s.writer()

	return s, nil
}

// Record implements core.AuditSink. It never blocks; when the queue is full
// the entry is dropped and counted.
func (s *FileSink) Record(entry core.AuditEntry) {
	select {
	case s.queue <- entry:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (s *FileSink) Dropped() uint64 { return s.dropped.Load() }

// Close drains the queue and closes the underlying file. Safe to call more
// than once.
func (s *FileSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.queue)
		s.wg.Wait()
		err = s.file.Close()
	})
	return err
}

func (s *FileSink) writer() {
	defer s.wg.Done()

	enc := json.NewEncoder(s.file)
	for entry := range s.queue {
		if err := enc.Encode(entry); err != nil {
			s.dropped.Add(1)
			s.logger.Warn("audit write failed", "error", err.Error())
		}
	}
}
