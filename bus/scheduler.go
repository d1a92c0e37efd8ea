package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/plantmesh/plantmesh/core"
	"github.com/plantmesh/plantmesh/logging"
)

var (
	// ErrQueueFull is returned when the scheduler's bounded queue is at
	// capacity; the caller decides whether to drop or publish immediately.
	ErrQueueFull = errors.New("bus: scheduler queue full")
	// ErrSchedulerClosed is returned by Schedule after Close.
	ErrSchedulerClosed = errors.New("bus: scheduler closed")
)

// ScheduleResult is delivered on the channel returned by Schedule once the
// delayed publish has settled.
type ScheduleResult struct {
	Event      core.Event
	Deliveries []core.Delivery
	Err        error
}

// SchedulerOptions holds configuration overrides passed to NewScheduler().
type SchedulerOptions struct {
	// QueueSize bounds the number of pending delayed publishes.
	QueueSize int
	// Workers sets how many delayed publishes may wait concurrently.
	Workers int
	// Logger receives scheduler lifecycle messages; defaults to NoOpLogger.
	Logger logging.Logger
}

type scheduledPublish struct {
	ctx       context.Context
	delay     time.Duration
	eventType string
	payload   any
	source    string
	optFns    []func(o *PublishOptions)
	result    chan ScheduleResult
}

// Scheduler runs delayed re-publishes through a bounded work queue with an
// observable completion signal per task, replacing fire-and-forget timer side
// effects. Safe for concurrent use.
type Scheduler struct {
	bus    *EventBus
	logger logging.Logger

	queue chan scheduledPublish
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewScheduler constructs a Scheduler bound to an EventBus and starts its
// workers.
func NewScheduler(b *EventBus, optFns ...func(o *SchedulerOptions)) *Scheduler {
	opts := SchedulerOptions{
		QueueSize: 64,
		Workers:   1,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Scheduler{
		bus:    b,
		logger: opts.Logger,
		queue:  make(chan scheduledPublish, opts.QueueSize),
	}

	for n := 0; n < opts.Workers; n++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

// Schedule enqueues a publish to run after delay. The returned channel
// receives exactly one ScheduleResult and is then closed, giving callers an
// observable completion signal. Returns ErrQueueFull when the bounded queue
// is at capacity and ErrSchedulerClosed after Close.
func (s *Scheduler) Schedule(ctx context.Context, delay time.Duration, eventType string, payload any, source string, optFns ...func(o *PublishOptions)) (<-chan ScheduleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}

	task := scheduledPublish{
		ctx:       ctx,
		delay:     delay,
		eventType: eventType,
		payload:   payload,
		source:    source,
		optFns:    optFns,
		result:    make(chan ScheduleResult, 1),
	}

	select {
	case s.queue <- task:
		return task.result, nil
	default:
		s.logger.Warn("scheduler queue full, publish dropped", "event_type", eventType, "source", source)
		return nil, ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued tasks to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for task := range s.queue {
		s.run(task)
	}
}

func (s *Scheduler) run(task scheduledPublish) {
	defer close(task.result)

	timer := time.NewTimer(task.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-task.ctx.Done():
		task.result <- ScheduleResult{Err: task.ctx.Err()}
		return
	}

	ev, deliveries := s.bus.Publish(task.ctx, task.eventType, task.payload, task.source, task.optFns...)
	task.result <- ScheduleResult{Event: ev, Deliveries: deliveries}
}
