package completion

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hochfrequenz/sqlbench/internal/artifact"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

func testBatch(t *testing.T, dir string) *domain.Batch {
	t.Helper()
	return domain.NewBatch(1, "tpch", domain.QueryRange{Start: 1, End: 10}, "postgres", 1, dir)
}

func writeArtifact(t *testing.T, b *domain.Batch) {
	t.Helper()
	v := 0.1
	err := artifact.WriteResults(b.ResultPath, []domain.QueryResult{
		{Benchmark: b.Benchmark, Engine: b.Engine, QueryNumber: 1, RunIndex: 1, Elapsed: &v},
	})
	require.NoError(t, err)
}

func TestArtifactDetector(t *testing.T) {
	b := testBatch(t, t.TempDir())
	d := ArtifactDetector{}

	require.Equal(t, Pending, d.Check(b))

	require.NoError(t, os.WriteFile(b.ResultPath, nil, 0644))
	require.Equal(t, Pending, d.Check(b), "empty file is not complete")

	writeArtifact(t, b)
	require.Equal(t, Finished, d.Check(b))
	require.True(t, IsComplete(d, b))
}

func TestMarkerDetector_Check(t *testing.T) {
	dir := t.TempDir()
	d := NewMarkerDetector(zap.NewNop().Sugar())

	pending := testBatch(t, dir)
	require.Equal(t, Pending, d.Check(pending))

	writeArtifact(t, pending)
	require.Equal(t, Pending, d.Check(pending), "artifact alone is not a completion signal")

	require.NoError(t, artifact.WriteMarker(pending.MarkerPath(), artifact.Marker{Batch: 1, Status: artifact.MarkerFinished, Rows: 1}))
	require.Equal(t, Finished, d.Check(pending))

	failed := domain.NewBatch(2, "tpch", domain.QueryRange{Start: 1, End: 1}, "mssql", 1, dir)
	require.NoError(t, artifact.WriteMarker(failed.MarkerPath(), artifact.Marker{Batch: 2, Status: artifact.MarkerFailed, Error: "not ready"}))
	require.Equal(t, Failed, d.Check(failed))

	lying := domain.NewBatch(3, "tpch", domain.QueryRange{Start: 1, End: 1}, "mysql", 1, dir)
	require.NoError(t, artifact.WriteMarker(lying.MarkerPath(), artifact.Marker{Batch: 3, Status: artifact.MarkerFinished}))
	require.Equal(t, Failed, d.Check(lying), "finished marker without artifact")
}

func TestMarkerDetector_Watch(t *testing.T) {
	dir := t.TempDir()
	d := NewMarkerDetector(zap.NewNop().Sugar())
	require.NoError(t, d.Watch(context.Background(), dir))
	defer d.Stop()

	b := testBatch(t, dir)
	writeArtifact(t, b)
	require.NoError(t, artifact.WriteMarker(b.MarkerPath(), artifact.Marker{Batch: 1, Status: artifact.MarkerFinished, Rows: 1}))

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		_, ok := d.seen[b.MarkerPath()]
		return ok
	}, 2*time.Second, 10*time.Millisecond, "watcher should cache the marker")

	// Once observed the outcome no longer depends on the files
	require.NoError(t, os.Remove(b.ResultPath))
	require.Equal(t, Finished, d.Check(b))
}

func TestMarkerDetector_IgnoresLeftoverMarkers(t *testing.T) {
	launched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		marker artifact.Marker
		want   Outcome
	}{
		{"written by this launch", artifact.Marker{Batch: 1, Status: artifact.MarkerFinished, FinishedAt: launched.Add(time.Minute)}, Finished},
		{"written before launch", artifact.Marker{Batch: 1, Status: artifact.MarkerFinished, FinishedAt: launched.Add(-time.Hour)}, Pending},
		{"failed before launch", artifact.Marker{Batch: 1, Status: artifact.MarkerFailed, FinishedAt: launched.Add(-time.Hour)}, Pending},
		{"other batch", artifact.Marker{Batch: 7, Status: artifact.MarkerFinished, FinishedAt: launched.Add(time.Minute)}, Pending},
		{"no batch", artifact.Marker{Status: artifact.MarkerFinished, FinishedAt: launched.Add(time.Minute)}, Pending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBatch(t, t.TempDir())
			require.NoError(t, b.Transition(domain.BatchRunning, launched))
			writeArtifact(t, b)
			require.NoError(t, artifact.WriteMarker(b.MarkerPath(), tt.marker))

			d := NewMarkerDetector(zap.NewNop().Sugar())
			require.Equal(t, tt.want, d.Check(b))
			// A second check goes through the cache
			require.Equal(t, tt.want, d.Check(b))
		})
	}
}

func TestMarkerDetector_FreshMarkerReplacesLeftover(t *testing.T) {
	launched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := testBatch(t, t.TempDir())
	require.NoError(t, b.Transition(domain.BatchRunning, launched))
	writeArtifact(t, b)

	d := NewMarkerDetector(zap.NewNop().Sugar())
	require.NoError(t, artifact.WriteMarker(b.MarkerPath(), artifact.Marker{Batch: 1, Status: artifact.MarkerFailed, FinishedAt: launched.Add(-time.Hour)}))
	require.Equal(t, Pending, d.Check(b))

	require.NoError(t, artifact.WriteMarker(b.MarkerPath(), artifact.Marker{Batch: 1, Status: artifact.MarkerFinished, FinishedAt: launched.Add(time.Second)}))
	require.Equal(t, Finished, d.Check(b))
}

type fakeExits map[int]error

func (f fakeExits) ExitStatus(id int) (bool, error) {
	err, ok := f[id]
	return ok, err
}

func TestExitDetector(t *testing.T) {
	exits := fakeExits{2: nil, 3: errors.New("exit status 1")}
	d := ExitDetector{Reporter: exits}

	mk := func(id int) *domain.Batch {
		return domain.NewBatch(id, "tpch", domain.QueryRange{Start: 1, End: 1}, "sqlite", 1, "")
	}
	require.Equal(t, Pending, d.Check(mk(1)))
	require.Equal(t, Finished, d.Check(mk(2)))
	require.Equal(t, Failed, d.Check(mk(3)))
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "pending", Pending.String())
	require.Equal(t, "finished", Finished.String())
	require.Equal(t, "failed", Failed.String())
}
