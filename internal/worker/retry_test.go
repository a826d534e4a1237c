package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// fakeClock advances only when told to
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sleep := &recordingSleep{}
	policy := RetryPolicy{Attempts: 3, Delay: 2 * time.Second, Sleep: sleep.Sleep, Now: clock.Now}

	calls := 0
	elapsed, attempts, err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			clock.Advance(10 * time.Second)
			return domain.Errorf(domain.KindQueryExecution, "exec", "transient")
		}
		clock.Advance(1500 * time.Millisecond)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 1500*time.Millisecond, elapsed, "only the successful attempt is timed")
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleep.delays)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	sleep := &recordingSleep{}
	policy := RetryPolicy{Attempts: 4, Delay: time.Second, Sleep: sleep.Sleep}

	calls := 0
	_, attempts, err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return domain.Errorf(domain.KindQueryExecution, "exec", "attempt %d failed", calls)
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "attempt 4 failed", "last error is returned")
	require.Equal(t, 4, calls)
	require.Equal(t, 4, attempts)
	require.Len(t, sleep.delays, 3, "no delay after the final attempt")
}

func TestRetryPolicy_NonRetryable(t *testing.T) {
	sleep := &recordingSleep{}
	policy := RetryPolicy{Attempts: 5, Delay: time.Second, Sleep: sleep.Sleep}

	calls := 0
	_, attempts, err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("unclassified")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, attempts)
	require.Empty(t, sleep.delays)
}

func TestRetryPolicy_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Attempts: 3, Delay: time.Hour}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		return domain.Errorf(domain.KindQueryExecution, "exec", "down")
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, attempts, err := RetryPolicy{}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, attempts)
}
