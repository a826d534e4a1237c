package runstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_StartAndFinishRun(t *testing.T) {
	store := newStore(t)

	run, err := store.StartRun("config.yml", "results")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("run ID %q is not a UUID: %v", run.ID, err)
	}

	if err := store.FinishRun(run.ID, 12, 2, errors.New("interrupted")); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ConfigPath != "config.yml" || got.ResultsDir != "results" {
		t.Errorf("unexpected paths %+v", got)
	}
	if got.Finished != 12 || got.Failed != 2 {
		t.Errorf("Finished/Failed = %d/%d, want 12/2", got.Finished, got.Failed)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
	if got.Error != "interrupted" {
		t.Errorf("Error = %q, want interrupted", got.Error)
	}
}

func TestStore_FinishUnknownRun(t *testing.T) {
	store := newStore(t)
	if err := store.FinishRun("missing", 0, 0, nil); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestStore_LatestRun(t *testing.T) {
	store := newStore(t)

	if _, err := store.LatestRun(); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("got %v, want ErrNoRuns", err)
	}

	clock := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	first, err := store.StartRun("a.yml", "results/a")
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(24 * time.Hour)
	second, err := store.StartRun("b.yml", "results/b")
	if err != nil {
		t.Fatal(err)
	}

	latest, err := store.LatestRun()
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != second.ID {
		t.Errorf("LatestRun = %s, want %s (first was %s)", latest.ID, second.ID, first.ID)
	}
	if !latest.StartedAt.Equal(clock) {
		t.Errorf("StartedAt = %v, want %v", latest.StartedAt, clock)
	}
}

func TestStore_BatchLifecycle(t *testing.T) {
	store := newStore(t)
	run, err := store.StartRun("config.yml", "results")
	if err != nil {
		t.Fatal(err)
	}
	rec := store.Recorder(run.ID)

	b := domain.NewBatch(3, "tpch", domain.QueryRange{Start: 21, End: 22}, "mysql", 5, "results")
	if err := rec.RecordBatch(b); err != nil {
		t.Fatal(err)
	}

	launched := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	if err := b.Transition(domain.BatchRunning, launched); err != nil {
		t.Fatal(err)
	}
	if err := rec.RecordBatch(b); err != nil {
		t.Fatal(err)
	}
	if err := b.Transition(domain.BatchFinished, launched.Add(90*time.Second)); err != nil {
		t.Fatal(err)
	}
	b.Error = "stop: network in use"
	if err := rec.RecordBatch(b); err != nil {
		t.Fatal(err)
	}

	batches, err := store.ListBatches(run.ID, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	got := batches[0]
	if got.ID != 3 || got.Benchmark != "tpch" || got.Engine != "mysql" {
		t.Errorf("unexpected identity %+v", got)
	}
	if got.Range != (domain.QueryRange{Start: 21, End: 22}) || got.RepeatCount != 5 {
		t.Errorf("unexpected range %v repeat %d", got.Range, got.RepeatCount)
	}
	if got.Status != domain.BatchFinished {
		t.Errorf("Status = %s, want finished", got.Status)
	}
	if got.LaunchedAt == nil || !got.LaunchedAt.Equal(launched) {
		t.Errorf("LaunchedAt = %v, want %v", got.LaunchedAt, launched)
	}
	if got.FinishedAt == nil || got.FinishedAt.Sub(*got.LaunchedAt) != 90*time.Second {
		t.Errorf("FinishedAt = %v", got.FinishedAt)
	}
	if got.Error != "stop: network in use" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.ResultPath != filepath.Join("results", "batch_3.csv") {
		t.Errorf("ResultPath = %q", got.ResultPath)
	}
}

func TestStore_ListBatchesFilters(t *testing.T) {
	store := newStore(t)
	run, err := store.StartRun("config.yml", "results")
	if err != nil {
		t.Fatal(err)
	}
	other, err := store.StartRun("config.yml", "results")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	mk := func(id int, engine string, status domain.BatchStatus) *domain.Batch {
		b := domain.NewBatch(id, "tpch", domain.QueryRange{Start: id, End: id}, engine, 1, "results")
		if status != domain.BatchQueued {
			if status != domain.BatchRunning {
				b.Transition(domain.BatchRunning, now)
			}
			b.Transition(status, now)
		}
		return b
	}
	for _, b := range []*domain.Batch{
		mk(2, "postgres", domain.BatchFinished),
		mk(1, "postgres", domain.BatchRunning),
		mk(3, "mysql", domain.BatchFailed),
		mk(4, "mysql", domain.BatchQueued),
	} {
		if err := store.UpsertBatch(run.ID, b); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpsertBatch(other.ID, mk(1, "postgres", domain.BatchQueued)); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListBatches(run.ID, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].ID != 1 || all[3].ID != 4 {
		t.Errorf("expected 4 batches in ID order, got %d", len(all))
	}

	mysql, err := store.ListBatches(run.ID, ListOptions{Engine: "mysql"})
	if err != nil {
		t.Fatal(err)
	}
	if len(mysql) != 2 {
		t.Errorf("got %d mysql batches, want 2", len(mysql))
	}

	failed, err := store.ListBatches(run.ID, ListOptions{Status: domain.BatchFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != 3 {
		t.Errorf("unexpected failed batches %v", failed)
	}

	counts, err := store.CountByStatus(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	for status, want := range map[domain.BatchStatus]int{
		domain.BatchQueued:   1,
		domain.BatchRunning:  1,
		domain.BatchFinished: 1,
		domain.BatchFailed:   1,
	} {
		if counts[status] != want {
			t.Errorf("counts[%s] = %d, want %d", status, counts[status], want)
		}
	}
}

func TestStore_BatchRequiresRun(t *testing.T) {
	store := newStore(t)
	b := domain.NewBatch(1, "tpch", domain.QueryRange{Start: 1, End: 1}, "postgres", 1, "results")
	if err := store.UpsertBatch("no-such-run", b); err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	run, err := store.StartRun("config.yml", "results")
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	latest, err := reopened.LatestRun()
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != run.ID {
		t.Errorf("LatestRun = %s, want %s", latest.ID, run.ID)
	}
}
