// Package completion decides whether a running batch is done.
package completion

import (
	"os"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Outcome of a completion check
type Outcome int

const (
	Pending Outcome = iota
	Finished
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Detector inspects a running batch. Check must be cheap and must not block.
type Detector interface {
	Check(b *domain.Batch) Outcome
}

// IsComplete reports whether the detector considers the batch done
func IsComplete(d Detector, b *domain.Batch) bool {
	return d.Check(b) != Pending
}

// ArtifactDetector treats an existing, non-empty result artifact as
// completion. A partially written file would also pass; workers guard
// against that by renaming a finished temp file into place. A worker that
// dies before writing leaves its batch pending forever.
type ArtifactDetector struct{}

// Check implements Detector
func (ArtifactDetector) Check(b *domain.Batch) Outcome {
	if artifactReady(b.ResultPath) {
		return Finished
	}
	return Pending
}

func artifactReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
