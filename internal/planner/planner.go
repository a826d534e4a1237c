// Package planner partitions benchmark workloads into bounded batches.
package planner

import (
	"fmt"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Input describes the workload to partition
type Input struct {
	BatchSize   int
	RepeatCount int
	Benchmarks  []domain.Benchmark
	Engines     []string
	ResultsDir  string
}

// Validate checks the numeric bounds of the input
func (in Input) Validate() error {
	if in.BatchSize <= 0 {
		return domain.Errorf(domain.KindConfiguration, "plan", "batch size must be positive, got %d", in.BatchSize)
	}
	if in.RepeatCount <= 0 {
		return domain.Errorf(domain.KindConfiguration, "plan", "repeat count must be positive, got %d", in.RepeatCount)
	}
	for _, b := range in.Benchmarks {
		if b.TotalQueries <= 0 {
			return domain.Errorf(domain.KindConfiguration, "plan", "benchmark %q: total queries must be positive, got %d", b.Name, b.TotalQueries)
		}
	}
	return nil
}

// Plan emits batches with benchmarks as the outer loop and engines as the
// inner loop. Ids are sequential from 1 across the whole emission.
func Plan(in Input) ([]*domain.Batch, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var batches []*domain.Batch
	nextID := 1
	for _, bench := range in.Benchmarks {
		for _, engine := range in.Engines {
			for start := 1; start <= bench.TotalQueries; start += in.BatchSize {
				r := domain.QueryRange{
					Start: start,
					End:   min(start+in.BatchSize-1, bench.TotalQueries),
				}
				batches = append(batches, domain.NewBatch(nextID, bench.Name, r, engine, in.RepeatCount, in.ResultsDir))
				nextID++
			}
		}
	}
	return batches, nil
}

// Pair identifies one benchmark/engine combination
type Pair struct {
	Benchmark string
	Engine    string
}

func (p Pair) String() string {
	return p.Benchmark + "/" + p.Engine
}

// Coverage checks that, for every pair, the planned ranges tile
// [1, TotalQueries] without gaps or overlaps.
func Coverage(benchmarks []domain.Benchmark, batches []*domain.Batch) error {
	totals := make(map[string]int, len(benchmarks))
	for _, b := range benchmarks {
		totals[b.Name] = b.TotalQueries
	}

	seen := make(map[Pair][]int)
	for _, b := range batches {
		total, ok := totals[b.Benchmark]
		if !ok {
			return fmt.Errorf("batch %d: unknown benchmark %q", b.ID, b.Benchmark)
		}
		p := Pair{Benchmark: b.Benchmark, Engine: b.Engine}
		if seen[p] == nil {
			seen[p] = make([]int, total+1)
		}
		for n := b.Range.Start; n <= b.Range.End; n++ {
			if n < 1 || n > total {
				return fmt.Errorf("%s: batch %d covers query %d outside [1,%d]", p, b.ID, n, total)
			}
			seen[p][n]++
		}
	}

	for p, counts := range seen {
		for n := 1; n < len(counts); n++ {
			switch {
			case counts[n] == 0:
				return fmt.Errorf("%s: query %d not covered", p, n)
			case counts[n] > 1:
				return fmt.Errorf("%s: query %d covered %d times", p, n, counts[n])
			}
		}
	}
	return nil
}
