package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestNewBatch_Paths(t *testing.T) {
	b := NewBatch(7, "tpch", QueryRange{Start: 11, End: 20}, "postgres", 5, "results")

	if b.Status != BatchQueued {
		t.Errorf("Status = %q, want %q", b.Status, BatchQueued)
	}
	if want := filepath.Join("results", "batch_7.csv"); b.ResultPath != want {
		t.Errorf("ResultPath = %q, want %q", b.ResultPath, want)
	}
	if want := filepath.Join("results", "batch_7.log"); b.LogPath != want {
		t.Errorf("LogPath = %q, want %q", b.LogPath, want)
	}
	if want := filepath.Join("results", "batch_7.done"); b.MarkerPath() != want {
		t.Errorf("MarkerPath() = %q, want %q", b.MarkerPath(), want)
	}
}

func TestBatch_Transition(t *testing.T) {
	tests := []struct {
		name    string
		path    []BatchStatus
		wantErr bool
	}{
		{"normal lifecycle", []BatchStatus{BatchRunning, BatchFinished}, false},
		{"failed while running", []BatchStatus{BatchRunning, BatchFailed}, false},
		{"launch failure", []BatchStatus{BatchFailed}, false},
		{"skip running", []BatchStatus{BatchFinished}, true},
		{"regress to queued", []BatchStatus{BatchRunning, BatchQueued}, true},
		{"launch twice", []BatchStatus{BatchRunning, BatchRunning}, true},
		{"leave terminal", []BatchStatus{BatchRunning, BatchFinished, BatchFailed}, true},
		{"unknown status", []BatchStatus{"paused"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBatch(1, "tpch", QueryRange{Start: 1, End: 10}, "postgres", 1, t.TempDir())
			var err error
			for _, to := range tt.path {
				if err = b.Transition(to, time.Now()); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Transition error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBatch_TransitionTimestamps(t *testing.T) {
	b := NewBatch(1, "tpch", QueryRange{Start: 1, End: 1}, "mysql", 1, "results")
	launched := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	finished := launched.Add(time.Minute)

	if err := b.Transition(BatchRunning, launched); err != nil {
		t.Fatal(err)
	}
	if err := b.Transition(BatchFinished, finished); err != nil {
		t.Fatal(err)
	}
	if b.LaunchedAt == nil || !b.LaunchedAt.Equal(launched) {
		t.Errorf("LaunchedAt = %v, want %v", b.LaunchedAt, launched)
	}
	if b.FinishedAt == nil || !b.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", b.FinishedAt, finished)
	}
	if !b.Status.IsTerminal() {
		t.Error("finished should be terminal")
	}
}

func TestQueryRange(t *testing.T) {
	r := QueryRange{Start: 11, End: 20}
	if r.Len() != 10 {
		t.Errorf("Len() = %d, want 10", r.Len())
	}
	if !r.Contains(11) || !r.Contains(20) || r.Contains(21) {
		t.Error("Contains should be inclusive on both ends")
	}
	if (QueryRange{Start: 5, End: 4}).Len() != 0 {
		t.Error("empty range should have length 0")
	}
	if r.String() != "11-20" {
		t.Errorf("String() = %q, want 11-20", r.String())
	}
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("query 3 run 1: %w", NewError(KindQueryExecution, "exec", base))

	if KindOf(err) != KindQueryExecution {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindQueryExecution)
	}
	if !IsRetryable(err) {
		t.Error("query execution errors should be retryable")
	}
	if !errors.Is(err, base) {
		t.Error("classified error should unwrap to its cause")
	}

	load := Errorf(KindQueryLoad, "load", "query %d not found", 5)
	if IsRetryable(load) {
		t.Error("query load errors should not be retryable")
	}
	if KindOf(base) != KindUnknown {
		t.Errorf("KindOf(plain) = %q, want empty", KindOf(base))
	}
	if IsKind(nil, KindUnknown) {
		t.Error("nil error should carry no kind")
	}
}
