package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Assignment is the query work of one batch
type Assignment struct {
	Benchmark   string
	Engine      string
	Range       domain.QueryRange
	RepeatCount int
}

// Runner executes an assignment strictly sequentially
type Runner struct {
	Handle dbhandle.Handle
	Loader QueryLoader
	Retry  RetryPolicy
	Log    *zap.SugaredLogger
}

// Run times every repetition of every query in the range. Missing query
// sources are logged and skipped; failed repetitions are recorded as rows
// without elapsed time. Only cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, a Assignment) ([]domain.QueryResult, error) {
	results := make([]domain.QueryResult, 0, a.Range.Len()*a.RepeatCount)

	for n := a.Range.Start; n <= a.Range.End; n++ {
		query, err := r.Loader.Load(a.Benchmark, a.Engine, n)
		if err != nil {
			r.Log.Errorw("skipping query", "query", n, "error", err)
			continue
		}

		for run := 1; run <= a.RepeatCount; run++ {
			elapsed, attempts, err := r.Retry.Do(ctx, func(ctx context.Context) error {
				return r.Handle.Exec(ctx, query)
			})
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}

			row := domain.QueryResult{
				Benchmark:   a.Benchmark,
				Engine:      a.Engine,
				QueryNumber: n,
				RunIndex:    run,
			}
			if err != nil {
				row.Error = err.Error()
				r.Log.Warnw("query failed", "query", n, "run", run, "attempts", attempts, "error", err)
			} else {
				secs := elapsed.Seconds()
				row.Elapsed = &secs
				r.Log.Infow("query finished", "query", n, "run", run, "attempts", attempts, "elapsed", elapsed)
			}
			results = append(results, row)
		}
	}
	return results, nil
}
