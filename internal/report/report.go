// Package report aggregates the result artifacts of a run into per-query
// timing statistics.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/sqlbench/internal/artifact"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Collection is the content of a results directory
type Collection struct {
	Files   []string
	Rows    []domain.QueryResult
	Skipped map[string]error
}

// Load reads every batch_<id>.csv under dir in batch order. Unreadable
// artifacts are reported in Skipped and do not fail the load.
func Load(dir string) (*Collection, error) {
	files, err := filepath.Glob(filepath.Join(dir, "batch_*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return batchNumber(files[i]) < batchNumber(files[j])
	})

	c := &Collection{Skipped: make(map[string]error)}
	for _, f := range files {
		rows, err := artifact.ReadResults(f)
		if err != nil {
			c.Skipped[f] = err
			continue
		}
		c.Files = append(c.Files, f)
		c.Rows = append(c.Rows, rows...)
	}
	return c, nil
}

func batchNumber(path string) int {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "batch_"), ".csv")
	n, err := strconv.Atoi(name)
	if err != nil {
		return -1
	}
	return n
}

// Write renders per-query statistics followed by per-engine totals
func Write(w io.Writer, stats []QueryStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tENGINE\tQUERY\tRUNS\tERRORS\tMIN\tMEDIAN\tMEAN\tP95\tMAX")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			s.Benchmark, s.Engine, s.Query, s.Runs, s.Errors,
			secs(s.Min), secs(s.Median), secs(s.Mean), secs(s.P95), secs(s.Max))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	engines := ByEngine(stats)
	if len(engines) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tENGINE\tQUERIES\tRUNS\tERRORS\tSUM OF MEDIANS")
	for _, e := range engines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
			e.Benchmark, e.Engine, e.Queries, humanize.Comma(int64(e.Runs)), e.Errors, secs(e.TotalMedian))
	}
	return tw.Flush()
}

func secs(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
