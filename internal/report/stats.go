package report

import (
	"math"
	"sort"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Key identifies one query of one benchmark on one engine
type Key struct {
	Benchmark string
	Engine    string
	Query     int
}

// QueryStats aggregates every run of one query
type QueryStats struct {
	Key
	Runs   int
	Errors int
	Min    time.Duration
	Median time.Duration
	Mean   time.Duration
	P95    time.Duration
	Max    time.Duration
}

// EngineStats sums the per-query medians of one benchmark on one engine
type EngineStats struct {
	Benchmark   string
	Engine      string
	Queries     int
	Runs        int
	Errors      int
	TotalMedian time.Duration
}

// Aggregate groups rows by (benchmark, engine, query) and sorts the result
func Aggregate(rows []domain.QueryResult) []QueryStats {
	groups := make(map[Key][]domain.QueryResult)
	for _, r := range rows {
		k := Key{Benchmark: r.Benchmark, Engine: r.Engine, Query: r.QueryNumber}
		groups[k] = append(groups[k], r)
	}

	stats := make([]QueryStats, 0, len(groups))
	for k, rs := range groups {
		stats = append(stats, computeStats(k, rs))
	}
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i].Key, stats[j].Key
		if a.Benchmark != b.Benchmark {
			return a.Benchmark < b.Benchmark
		}
		if a.Engine != b.Engine {
			return a.Engine < b.Engine
		}
		return a.Query < b.Query
	})
	return stats
}

// ByEngine rolls query stats up per (benchmark, engine)
func ByEngine(stats []QueryStats) []EngineStats {
	var out []EngineStats
	index := make(map[[2]string]int)
	for _, s := range stats {
		k := [2]string{s.Benchmark, s.Engine}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, EngineStats{Benchmark: s.Benchmark, Engine: s.Engine})
		}
		out[i].Queries++
		out[i].Runs += s.Runs
		out[i].Errors += s.Errors
		out[i].TotalMedian += s.Median
	}
	return out
}

func computeStats(k Key, rows []domain.QueryResult) QueryStats {
	stats := QueryStats{Key: k, Runs: len(rows)}

	var durations []time.Duration
	for _, r := range rows {
		if !r.Succeeded() {
			stats.Errors++
			continue
		}
		durations = append(durations, seconds(*r.Elapsed))
	}

	if len(durations) == 0 {
		return stats
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	stats.Mean = sum / time.Duration(len(durations))
	stats.Min = durations[0]
	stats.Max = durations[len(durations)-1]
	stats.Median = pct(durations, 50)
	stats.P95 = pct(durations, 95)

	return stats
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func pct(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
