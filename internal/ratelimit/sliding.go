// Package ratelimit bounds outbound calls to the weather provider.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultPeriod is the rolling window the provider quota is expressed in.
const DefaultPeriod = time.Minute

// Limiter hands out permits for outbound calls.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Wait blocks until a permit is granted or ctx is done; it never drops a call.
type Limiter interface {
	Wait(ctx context.Context) error
}

// SlidingWindow grants at most max permits in any rolling period.
// It remembers the grant time of every permit still inside the window.
type SlidingWindow struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu     sync.Mutex
	grants []time.Time // oldest first
}

// New creates a limiter allowing maxCalls per minute.
func New(maxCalls int) *SlidingWindow {
	return NewWithPeriod(maxCalls, DefaultPeriod)
}

// NewWithPeriod creates a limiter allowing maxCalls per period.
func NewWithPeriod(maxCalls int, period time.Duration) *SlidingWindow {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &SlidingWindow{
		max:    maxCalls,
		period: period,
		now:    time.Now,
		grants: make([]time.Time, 0, maxCalls),
	}
}

// Wait blocks until a permit is available or ctx is cancelled.
func (s *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay, ok := s.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a permit if one is free. Otherwise it reports how long until
// the oldest grant leaves the window.
func (s *SlidingWindow) reserve() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	if len(s.grants) < s.max {
		s.grants = append(s.grants, now)
		return 0, true
	}

	delay := s.grants[0].Add(s.period).Sub(now)
	if delay <= 0 {
		delay = time.Millisecond
	}
	return delay, false
}

func (s *SlidingWindow) evictLocked(now time.Time) {
	cutoff := now.Add(-s.period)
	i := 0
	for i < len(s.grants) && !s.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.grants = append(s.grants[:0], s.grants[i:]...)
	}
}

// InFlight returns the number of permits granted within the current window.
func (s *SlidingWindow) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(s.now())
	return len(s.grants)
}

// Ensure SlidingWindow implements Limiter
var _ Limiter = (*SlidingWindow)(nil)
