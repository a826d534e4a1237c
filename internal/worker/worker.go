package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/sqlbench/internal/artifact"
	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Worker ties readiness, execution and result flushing together
type Worker struct {
	Settings *Settings
	Handle   dbhandle.Handle
	Log      *zap.SugaredLogger

	// Sleep is used between retries; nil means real time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a worker that connects through the settings' engine
func New(s *Settings, log *zap.SugaredLogger) (*Worker, error) {
	h, err := dbhandle.Open(s.Engine, s.Conn)
	if err != nil {
		return nil, err
	}
	return &Worker{Settings: s, Handle: h, Log: log}, nil
}

// Run executes the batch. A readiness timeout is fatal: a failed marker is
// written and no artifact is produced.
func (w *Worker) Run(ctx context.Context) error {
	s := w.Settings
	w.Log.Infow("worker starting",
		"benchmark", s.Benchmark,
		"engine", s.Engine,
		"queries", fmt.Sprintf("%d-%d", s.Range.Start, s.Range.End),
		"repeat", s.RepeatCount,
	)
	w.Log.Infof("host stat: %+v", CollectHostInfo())

	if err := WaitReady(ctx, w.Handle, s.ReadinessTimeout, s.ReadinessInterval, w.Log); err != nil {
		w.Log.Errorw("database never became ready", "error", err)
		return w.fail(err)
	}

	runner := &Runner{
		Handle: w.Handle,
		Loader: QueryLoader{Root: s.QueryRoot},
		Retry:  RetryPolicy{Attempts: s.Retries, Delay: s.RetryDelay, Sleep: w.Sleep},
		Log:    w.Log,
	}
	rows, err := runner.Run(ctx, s.Assignment())
	if err != nil {
		return w.fail(err)
	}

	if err := artifact.WriteResults(s.ResultCSV, rows); err != nil {
		return w.fail(fmt.Errorf("writing results: %w", err))
	}

	failed := 0
	for _, r := range rows {
		if !r.Succeeded() {
			failed++
		}
	}
	marker := artifact.Marker{
		Batch:      s.BatchID,
		Status:     artifact.MarkerFinished,
		Rows:       len(rows),
		FailedRows: failed,
		FinishedAt: time.Now().UTC(),
	}
	if err := artifact.WriteMarker(domain.MarkerPath(s.ResultCSV), marker); err != nil {
		return fmt.Errorf("writing completion marker: %w", err)
	}
	w.Log.Infow("results written", "path", s.ResultCSV, "rows", len(rows), "failed", failed)
	return nil
}

func (w *Worker) fail(cause error) error {
	marker := artifact.Marker{
		Batch:      w.Settings.BatchID,
		Status:     artifact.MarkerFailed,
		Error:      cause.Error(),
		FinishedAt: time.Now().UTC(),
	}
	if err := artifact.WriteMarker(domain.MarkerPath(w.Settings.ResultCSV), marker); err != nil {
		w.Log.Errorw("writing failure marker", "error", err)
	}
	return cause
}
