package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_DelayedPublishSignalsCompletion(t *testing.T) {
	b := New()
	b.Subscribe("reload/due", "agent", okHandler("done"))

	s := NewScheduler(b)
	defer s.Close()

	resultCh, err := s.Schedule(context.Background(), 10*time.Millisecond, "reload/due", nil, "scheduler")
	require.NoError(t, err)

	select {
	case res := <-resultCh:
		require.NoError(t, res.Err)
		assert.Equal(t, "reload/due", res.Event.Type)
		require.Len(t, res.Deliveries, 1)
		assert.True(t, res.Deliveries[0].Success)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled publish never completed")
	}
}

func TestScheduler_QueueFull(t *testing.T) {
	b := New()
	s := NewScheduler(b, func(o *SchedulerOptions) { o.QueueSize = 1; o.Workers = 1 })
	defer s.Close()

	// Park the single worker on a long delay, then fill the queue.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := s.Schedule(ctx, time.Hour, "busy/1", nil, "test")
	require.NoError(t, err)

	// The worker may not have picked the first task up yet, so allow one
	// queued entry before expecting rejection.
	var sawFull bool
	for n := 0; n < 3; n++ {
		if _, err := s.Schedule(ctx, time.Hour, "busy/more", nil, "test"); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull, "bounded queue must eventually reject")
	cancel()
}

func TestScheduler_ClosedRejectsNewWork(t *testing.T) {
	b := New()
	s := NewScheduler(b)
	s.Close()
	s.Close() // idempotent

	_, err := s.Schedule(context.Background(), time.Millisecond, "late/event", nil, "test")
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestScheduler_ContextCancelledWhileWaiting(t *testing.T) {
	b := New()
	s := NewScheduler(b)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	resultCh, err := s.Schedule(ctx, time.Hour, "never/published", nil, "test")
	require.NoError(t, err)
	cancel()

	select {
	case res := <-resultCh:
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Empty(t, res.Event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled schedule never settled")
	}
}

// Guards against regressions in delivery bookkeeping when publishes originate
// from the scheduler rather than a direct caller.
func TestScheduler_PublishCountsInBusMetrics(t *testing.T) {
	b := New()
	b.Subscribe("tick", "agent", okHandler(nil))
	s := NewScheduler(b)
	defer s.Close()

	resultCh, err := s.Schedule(context.Background(), time.Millisecond, "tick", nil, "scheduler")
	require.NoError(t, err)
	<-resultCh

	m := b.Metrics()
	assert.Equal(t, uint64(1), m.EventsPublished)
	assert.Equal(t, uint64(1), m.EventsProcessed)
}
