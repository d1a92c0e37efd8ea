package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AdmitsUpToMaxThenRejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	l := New(5, time.Minute)
	l.now = func() time.Time { return now }

	for n := 0; n < 5; n++ {
		assert.True(t, l.TryAdmit("oee-agent"), "call %d should be admitted", n+1)
	}
	assert.False(t, l.TryAdmit("oee-agent"), "6th call inside the window must be rejected")
	assert.Equal(t, uint64(1), l.Blocked())
	assert.Equal(t, 5, l.InWindow())
}

func TestLimiter_AdmissionResumesAfterWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	l := New(5, time.Minute)
	l.now = func() time.Time { return now }

	for n := 0; n < 5; n++ {
		assert.True(t, l.TryAdmit("oee-agent"))
	}
	assert.False(t, l.TryAdmit("oee-agent"))

	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.TryAdmit("oee-agent"), "admission must resume once the window elapsed")
	assert.Equal(t, 1, l.InWindow())
}

func TestLimiter_Utilization(t *testing.T) {
	l := New(4, time.Minute)

	assert.Equal(t, 0.0, l.Utilization())
	l.TryAdmit("a")
	l.TryAdmit("b")
	assert.InDelta(t, 0.5, l.Utilization(), 1e-9)
}

func TestLimiter_CallsByCaller(t *testing.T) {
	l := New(10, time.Minute)

	l.TryAdmit("quality-agent")
	l.TryAdmit("quality-agent")
	l.TryAdmit("maintenance-agent")

	breakdown := l.CallsByCaller()
	assert.Equal(t, 2, breakdown["quality-agent"])
	assert.Equal(t, 1, breakdown["maintenance-agent"])
}

func TestLimiter_Reset(t *testing.T) {
	l := New(1, time.Minute)

	assert.True(t, l.TryAdmit("a"))
	assert.False(t, l.TryAdmit("a"))

	l.Reset()

	assert.Equal(t, uint64(0), l.Blocked())
	assert.True(t, l.TryAdmit("a"), "reset must reopen admission")
}

func TestLimiter_ConcurrentAdmission(t *testing.T) {
	const max = 50
	l := New(max, time.Minute)

	var wg sync.WaitGroup
	admitted := make(chan bool, 200)
	for n := 0; n < 200; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- l.TryAdmit("burst")
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	assert.Equal(t, max, count, "exactly maxCalls admissions under concurrency")
	assert.Equal(t, uint64(150), l.Blocked())
}
