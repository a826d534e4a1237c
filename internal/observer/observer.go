package observer

import (
	"sort"
	"sync"
	"time"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Observer watches running batches and collects run metrics
type Observer struct {
	stuckThreshold time.Duration

	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	BatchID     int
	Engine      string
	Duration    time.Duration
	Failed      bool
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalFinished int
	TotalFailed   int
	AvgDuration   time.Duration
	ByEngine      map[string]EngineMetrics
}

// EngineMetrics aggregates completions of one engine
type EngineMetrics struct {
	Batches     int
	Failed      int
	AvgDuration time.Duration
}

// New creates a new Observer. A zero threshold disables stuck detection.
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
	}
}

// IsStuck returns true if a running batch has exceeded the stuck threshold
func (o *Observer) IsStuck(b *domain.Batch, now time.Time) bool {
	if o.stuckThreshold <= 0 {
		return false
	}
	if b.Status != domain.BatchRunning {
		return false
	}
	if b.LaunchedAt == nil {
		return false
	}
	return now.Sub(*b.LaunchedAt) > o.stuckThreshold
}

// RecordCompletion records a terminal batch
func (o *Observer) RecordCompletion(b *domain.Batch) {
	c := completion{
		BatchID: b.ID,
		Engine:  b.Engine,
		Failed:  b.Status == domain.BatchFailed,
	}
	if b.FinishedAt != nil {
		c.CompletedAt = *b.FinishedAt
		if b.LaunchedAt != nil {
			c.Duration = b.FinishedAt.Sub(*b.LaunchedAt)
		}
	} else {
		c.CompletedAt = time.Now()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.completions = append(o.completions, c)
}

// GetMetrics returns aggregated metrics. Batches that failed before
// launching carry no duration and are left out of the averages.
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	metrics := Metrics{ByEngine: make(map[string]EngineMetrics)}
	var totalDuration time.Duration
	var timed int
	engineTotals := make(map[string]time.Duration)
	engineTimed := make(map[string]int)

	for _, c := range o.completions {
		em := metrics.ByEngine[c.Engine]
		em.Batches++
		if c.Failed {
			metrics.TotalFailed++
			em.Failed++
		} else {
			metrics.TotalFinished++
		}
		if c.Duration > 0 {
			totalDuration += c.Duration
			timed++
			engineTotals[c.Engine] += c.Duration
			engineTimed[c.Engine]++
		}
		metrics.ByEngine[c.Engine] = em
	}

	if timed > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(timed)
	}
	for engine, em := range metrics.ByEngine {
		if n := engineTimed[engine]; n > 0 {
			em.AvgDuration = engineTotals[engine] / time.Duration(n)
			metrics.ByEngine[engine] = em
		}
	}

	return metrics
}

// GetRecentCompletions returns the IDs of batches completed after now-since
func (o *Observer) GetRecentCompletions(since time.Duration, now time.Time) []int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := now.Add(-since)
	var result []int

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.BatchID)
		}
	}
	sort.Ints(result)

	return result
}
