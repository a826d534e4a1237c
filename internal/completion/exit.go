package completion

import "github.com/hochfrequenz/sqlbench/internal/domain"

// ExitReporter is implemented by environments that observe their workers'
// exit status directly
type ExitReporter interface {
	ExitStatus(batchID int) (exited bool, err error)
}

// ExitDetector maps a worker's exit status onto an outcome
type ExitDetector struct {
	Reporter ExitReporter
}

// Check implements Detector
func (d ExitDetector) Check(b *domain.Batch) Outcome {
	exited, err := d.Reporter.ExitStatus(b.ID)
	switch {
	case !exited:
		return Pending
	case err != nil:
		return Failed
	default:
		return Finished
	}
}
