package domain

import "fmt"

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchQueued   BatchStatus = "queued"
	BatchRunning  BatchStatus = "running"
	BatchFinished BatchStatus = "finished"
	BatchFailed   BatchStatus = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s BatchStatus) IsTerminal() bool {
	return s == BatchFinished || s == BatchFailed
}

// Benchmark names a query suite and its size
type Benchmark struct {
	Name         string
	TotalQueries int
}

// QueryRange is a 1-indexed inclusive range of query numbers
type QueryRange struct {
	Start int
	End   int
}

// Len returns the number of queries in the range
func (r QueryRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r QueryRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Contains reports whether n lies inside the range
func (r QueryRange) Contains(n int) bool {
	return n >= r.Start && n <= r.End
}
