package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	rl := New(0)
	assert.Equal(t, 1, rl.max)
	assert.Equal(t, time.Minute, rl.period)
}

func TestSlidingWindow_GrantsUpToMax(t *testing.T) {
	rl := NewWithPeriod(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := time.Now()
		require.NoError(t, rl.Wait(ctx))
		assert.Less(t, time.Since(start), 50*time.Millisecond, "permit %d should be immediate", i)
	}
	assert.Equal(t, 3, rl.InFlight())
}

func TestSlidingWindow_DelaysInsteadOfDropping(t *testing.T) {
	period := 150 * time.Millisecond
	rl := NewWithPeriod(2, period)
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))

	start := time.Now()
	err := rl.Wait(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err, "the third call must be delayed, not rejected")
	assert.GreaterOrEqual(t, elapsed, period-20*time.Millisecond)
}

func TestSlidingWindow_SlotFreesExactlyAfterPeriod(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	now := base
	rl := NewWithPeriod(1, time.Minute)
	rl.now = func() time.Time { return now }

	_, ok := rl.reserve()
	require.True(t, ok)

	now = base.Add(time.Minute - time.Second)
	delay, ok := rl.reserve()
	assert.False(t, ok)
	assert.Equal(t, time.Second, delay)

	now = base.Add(time.Minute)
	_, ok = rl.reserve()
	assert.True(t, ok)
}

func TestSlidingWindow_ContextCancellation(t *testing.T) {
	rl := NewWithPeriod(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, rl.InFlight(), "a cancelled wait must not consume a permit")
}

func TestSlidingWindow_ConcurrentNeverExceedsBudget(t *testing.T) {
	rl := NewWithPeriod(10, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Wait(ctx) == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), granted.Load())
}
