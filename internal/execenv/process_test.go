package execenv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

func newProcessEnv(t *testing.T, script string) (*ProcessEnvironment, string) {
	t.Helper()
	dir := t.TempDir()
	opts := testWorkerOptions()
	opts.Binary = "sh"
	opts.Args = []string{"-c", script}
	env := NewProcessEnvironment(ProcessConfig{
		SpecsDir: filepath.Join(dir, "specs"),
		Targets: map[string]Target{
			"sqlite": {Engine: mustEngine(t, "sqlite")},
		},
		Worker: opts,
	}, zap.NewNop().Sugar())
	return env, dir
}

func waitExit(t *testing.T, env *ProcessEnvironment, id int) error {
	t.Helper()
	var exitErr error
	require.Eventually(t, func() bool {
		exited, err := env.ExitStatus(id)
		exitErr = err
		return exited
	}, 5*time.Second, 10*time.Millisecond)
	return exitErr
}

func TestProcessEnvironment_RunsWorker(t *testing.T) {
	env, dir := newProcessEnv(t, `echo "$BENCHMARK $QUERY_START-$QUERY_END" > "$RESULT_CSV"`)
	results := filepath.Join(dir, "results")
	require.NoError(t, os.MkdirAll(results, 0755))
	b := domain.NewBatch(1, "tpch", domain.QueryRange{Start: 3, End: 4}, "sqlite", 1, results)

	spec, err := env.Materialize(b)
	require.NoError(t, err)
	require.Equal(t, b.ResultPath, spec.WorkerEnv["RESULT_CSV"])
	require.Equal(t, "1", spec.WorkerEnv["BATCH_ID"])
	require.Contains(t, string(spec.Document), "sqlbench-batch-1")

	exited, _ := env.ExitStatus(1)
	require.False(t, exited, "not started yet")

	require.NoError(t, env.Start(context.Background(), spec))
	require.NoError(t, waitExit(t, env, 1))

	data, err := os.ReadFile(b.ResultPath)
	require.NoError(t, err)
	require.Equal(t, "tpch 3-4", strings.TrimSpace(string(data)))

	require.NoError(t, env.Stop(context.Background(), spec))
	exited, _ = env.ExitStatus(1)
	require.False(t, exited, "stopped units are forgotten")
}

func TestProcessEnvironment_ExitError(t *testing.T) {
	env, dir := newProcessEnv(t, "exit 3")
	b := domain.NewBatch(2, "tpch", domain.QueryRange{Start: 1, End: 1}, "sqlite", 1, dir)

	spec, err := env.Materialize(b)
	require.NoError(t, err)
	require.NoError(t, env.Start(context.Background(), spec))
	require.Error(t, waitExit(t, env, 2))
	require.NoError(t, env.Stop(context.Background(), spec))
}

func TestProcessEnvironment_StopKills(t *testing.T) {
	env, dir := newProcessEnv(t, "sleep 30")
	b := domain.NewBatch(3, "tpch", domain.QueryRange{Start: 1, End: 1}, "sqlite", 1, dir)

	spec, err := env.Materialize(b)
	require.NoError(t, err)
	require.NoError(t, env.Start(context.Background(), spec))

	err = env.Start(context.Background(), spec)
	require.Equal(t, domain.KindOrchestration, domain.KindOf(err), "double start is rejected")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, env.Stop(ctx, spec))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessDocument_Marshal(t *testing.T) {
	doc := processDocument{
		Name:    "sqlbench-batch-2",
		Command: []string{"/usr/local/bin/sqlbench-worker", "--log-level", "debug"},
		Env:     map[string]string{"BATCH_ID": "2", "RESULT_CSV": "/tmp/batch_2.csv"},
	}
	data, err := doc.marshal()
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\n"), "encoder flushed on close")
	require.Contains(t, string(data), "\n  BATCH_ID: \"2\"\n")

	var back processDocument
	require.NoError(t, yaml.Unmarshal(data, &back))
	require.Equal(t, doc, back)
}
