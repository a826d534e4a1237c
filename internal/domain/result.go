package domain

// QueryResult is one timed repetition of one query.
// Elapsed is set on success, Error on failure.
type QueryResult struct {
	Benchmark   string
	Engine      string
	QueryNumber int
	RunIndex    int
	Elapsed     *float64
	Error       string
}

// Succeeded reports whether the repetition completed
func (r QueryResult) Succeeded() bool {
	return r.Elapsed != nil
}
