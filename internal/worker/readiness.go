package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// WaitReady probes the database every interval until it answers or timeout
// elapses. The timeout error wraps the last probe failure.
func WaitReady(ctx context.Context, h dbhandle.Handle, timeout, interval time.Duration, log *zap.SugaredLogger) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	for attempt := 1; ; attempt++ {
		err := h.Probe(waitCtx)
		if err == nil {
			log.Infof("database ready after %v (%d probes)", time.Since(start).Round(time.Millisecond), attempt)
			return nil
		}
		log.Debugf("database not ready (probe %d): %v", attempt, err)

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.NewError(domain.KindReadinessTimeout, "wait for database",
				fmt.Errorf("not ready after %v: %w", timeout, err))
		case <-time.After(interval):
		}
	}
}
