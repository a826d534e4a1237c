package worker

import (
	"context"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// RetryPolicy runs an operation up to Attempts times with a fixed Delay
// between attempts. Only retryable errors trigger another attempt.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration

	// Sleep and Now default to real time
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Do returns the wall-clock time of the successful attempt only, together
// with the number of attempts made
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) (time.Duration, int, error) {
	attempts := max(p.Attempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := now()
		err := op(ctx)
		if err == nil {
			return now().Sub(start), attempt, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) {
			return 0, attempt, err
		}
		if attempt < attempts {
			if err := sleep(ctx, p.Delay); err != nil {
				return 0, attempt, err
			}
		}
	}
	return 0, attempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
