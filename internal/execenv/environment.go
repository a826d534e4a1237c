// Package execenv materializes, starts and tears down the isolated execution
// unit (worker plus database) of a batch.
package execenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/worker"
)

// Environment runs execution units. Materialize is idempotent; Start
// returns once the unit is launched; Stop blocks until it is torn down.
type Environment interface {
	Materialize(b *domain.Batch) (*Spec, error)
	Start(ctx context.Context, spec *Spec) error
	Stop(ctx context.Context, spec *Spec) error
}

// Spec is a materialized execution unit
type Spec struct {
	BatchID   int
	Project   string
	Path      string
	WorkerEnv map[string]string
	Document  []byte
}

// Target is a resolved engine and, outside containers, the host it runs on
type Target struct {
	Engine dbhandle.Engine
	Host   string
}

// WorkerOptions are the worker settings shared by all batches
type WorkerOptions struct {
	Image            string
	Binary           string
	Args             []string
	QueryRoot        string
	ReadinessTimeout time.Duration
	Retries          int
	RetryDelay       time.Duration
}

// ProjectName returns the unit name of a batch
func ProjectName(batchID int) string {
	return fmt.Sprintf("sqlbench-batch-%d", batchID)
}

// SpecFileName returns the serialized spec file name of a batch
func SpecFileName(batchID int) string {
	return fmt.Sprintf("compose_batch_%d.yml", batchID)
}

func workerSettings(b *domain.Batch, conn dbhandle.ConnParams, engine string, opts WorkerOptions, resultCSV, resultLog string) *worker.Settings {
	return &worker.Settings{
		BatchID:          b.ID,
		Engine:           engine,
		Conn:             conn,
		Benchmark:        b.Benchmark,
		Range:            b.Range,
		RepeatCount:      b.RepeatCount,
		ResultCSV:        resultCSV,
		ResultLog:        resultLog,
		QueryRoot:        opts.QueryRoot,
		ReadinessTimeout: opts.ReadinessTimeout,
		Retries:          opts.Retries,
		RetryDelay:       opts.RetryDelay,
	}
}

// requiredWorkerEnv lists the variables every worker must receive
var requiredWorkerEnv = []string{
	worker.EnvBatchID, worker.EnvDBType, worker.EnvDBPort, worker.EnvDBName,
	worker.EnvBenchmark, worker.EnvQueryStart, worker.EnvQueryEnd, worker.EnvRepeatCount,
	worker.EnvResultCSV, worker.EnvResultLog,
}

func checkWorkerEnv(env map[string]string) error {
	for _, key := range requiredWorkerEnv {
		if env[key] == "" {
			return fmt.Errorf("worker environment is missing %s", key)
		}
	}
	return nil
}

func writeSpec(path string, doc []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, doc, 0644)
}

func lookupTarget(targets map[string]Target, b *domain.Batch) (Target, error) {
	t, ok := targets[b.Engine]
	if !ok {
		return Target{}, domain.Errorf(domain.KindConfiguration, "materialize",
			"batch %d: no target for engine %q", b.ID, b.Engine)
	}
	return t, nil
}
