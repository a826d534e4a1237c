package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Batch is one schedulable unit of benchmark work: a contiguous query range
// of a single benchmark against a single engine.
type Batch struct {
	ID          int
	Benchmark   string
	Range       QueryRange
	Engine      string
	RepeatCount int
	Status      BatchStatus

	ResultPath string
	LogPath    string

	LaunchedAt *time.Time
	FinishedAt *time.Time
	Error      string
}

// NewBatch creates a queued batch whose artifact paths live under resultsDir
func NewBatch(id int, benchmark string, r QueryRange, engine string, repeat int, resultsDir string) *Batch {
	return &Batch{
		ID:          id,
		Benchmark:   benchmark,
		Range:       r,
		Engine:      engine,
		RepeatCount: repeat,
		Status:      BatchQueued,
		ResultPath:  filepath.Join(resultsDir, ResultFileName(id)),
		LogPath:     filepath.Join(resultsDir, LogFileName(id)),
	}
}

// ResultFileName returns the artifact file name for a batch id
func ResultFileName(id int) string {
	return fmt.Sprintf("batch_%d.csv", id)
}

// LogFileName returns the worker log file name for a batch id
func LogFileName(id int) string {
	return fmt.Sprintf("batch_%d.log", id)
}

// MarkerPath derives the completion marker location from a result artifact path
func MarkerPath(resultPath string) string {
	return strings.TrimSuffix(resultPath, filepath.Ext(resultPath)) + ".done"
}

// MarkerPath returns the completion marker written next to the result artifact
func (b *Batch) MarkerPath() string {
	return MarkerPath(b.ResultPath)
}

// String returns a short human readable label
func (b *Batch) String() string {
	return fmt.Sprintf("batch %d (%s/%s q%d-%d)", b.ID, b.Benchmark, b.Engine, b.Range.Start, b.Range.End)
}

// transitions lists the allowed forward moves. Launch failures go straight
// from queued to failed.
var transitions = map[BatchStatus][]BatchStatus{
	BatchQueued:  {BatchRunning, BatchFailed},
	BatchRunning: {BatchFinished, BatchFailed},
}

// CanTransition reports whether the batch may move to the given status
func (b *Batch) CanTransition(to BatchStatus) bool {
	for _, next := range transitions[b.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the batch to a later lifecycle state. Statuses only move
// forward and terminal states are final.
func (b *Batch) Transition(to BatchStatus, at time.Time) error {
	if !b.CanTransition(to) {
		return fmt.Errorf("batch %d: invalid transition %s -> %s", b.ID, b.Status, to)
	}
	switch to {
	case BatchRunning:
		b.LaunchedAt = &at
	case BatchFinished, BatchFailed:
		b.FinishedAt = &at
	}
	b.Status = to
	return nil
}
