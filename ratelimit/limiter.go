package ratelimit

import (
	"sync"
	"time"

	"github.com/plantmesh/plantmesh/logging"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// Logger receives admission decisions; defaults to NoOpLogger.
	Logger logging.Logger
}

// call records one admitted call inside the sliding window.
type call struct {
	at     time.Time
	caller string
}

// Limiter enforces a maximum number of admitted calls inside a sliding time
// window. Entries older than the window are purged lazily on each admission
// check. Safe for concurrent use; all read-modify-write operations happen
// under a single mutex so the count behaves as one logical counter.
type Limiter struct {
	maxCalls int
	window   time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	calls   []call
	blocked uint64

	// now is swappable for deterministic tests.
	now func() time.Time
}

// New creates a limiter admitting at most maxCalls per window.
func New(maxCalls int, window time.Duration, optFns ...func(o *Options)) *Limiter {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// TryAdmit reports whether a call by callerID may proceed. On admission the
// call is recorded against the window; on rejection the blocked counter is
// incremented. This never blocks or queues.
func (l *Limiter) TryAdmit(callerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purgeLocked(now)

	if len(l.calls) >= l.maxCalls {
		l.blocked++
		l.logger.Warn("rate limit exceeded", "caller_id", callerID, "in_window", len(l.calls), "max_calls", l.maxCalls)
		return false
	}

	l.calls = append(l.calls, call{at: now, caller: callerID})
	l.logger.Debug("call admitted", "caller_id", callerID, "in_window", len(l.calls), "max_calls", l.maxCalls)
	return true
}

// Utilization returns the fraction of the window currently consumed
// (calls in window / max calls).
func (l *Limiter) Utilization() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxCalls == 0 {
		return 0
	}
	l.purgeLocked(l.now())
	return float64(len(l.calls)) / float64(l.maxCalls)
}

// InWindow returns the number of admitted calls currently inside the window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeLocked(l.now())
	return len(l.calls)
}

// Blocked returns the total number of rejected calls since creation or the
// last Reset.
func (l *Limiter) Blocked() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.blocked
}

// CallsByCaller returns a per-caller breakdown of admitted calls inside the
// current window.
func (l *Limiter) CallsByCaller() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeLocked(l.now())
	breakdown := make(map[string]int, len(l.calls))
	for _, c := range l.calls {
		breakdown[c.caller]++
	}
	return breakdown
}

// Reset clears the window and the blocked counter. Intended for operational
// recovery, not routine use.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = nil
	l.blocked = 0
	l.logger.Info("rate limiter reset")
}

// purgeLocked drops entries older than the window; caller must hold the lock.
func (l *Limiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.calls[:0]
	for _, c := range l.calls {
		if c.at.After(cutoff) {
			kept = append(kept, c)
		}
	}
	l.calls = kept
}
