// Package artifact reads and writes the files a worker leaves behind: the CSV
// result artifact and the completion marker next to it.
package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Header is the column layout of every result artifact
var Header = []string{"benchmark", "db_type", "query_number", "run_idx", "elapsed_sec", "error"}

// WriteResults writes rows to path atomically: the content goes to a sibling
// temp file which is synced and renamed over path.
func WriteResults(path string, rows []domain.QueryResult) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(record(r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func record(r domain.QueryResult) []string {
	elapsed := ""
	if r.Elapsed != nil {
		elapsed = strconv.FormatFloat(*r.Elapsed, 'f', 6, 64)
	}
	return []string{
		r.Benchmark,
		r.Engine,
		strconv.Itoa(r.QueryNumber),
		strconv.Itoa(r.RunIndex),
		elapsed,
		r.Error,
	}
}

// ReadResults parses a result artifact
func ReadResults(path string) ([]domain.QueryResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reading %s: missing header", path)
	}
	for i, col := range Header {
		if records[0][i] != col {
			return nil, fmt.Errorf("reading %s: unexpected column %q at %d, want %q", path, records[0][i], i, col)
		}
	}

	rows := make([]domain.QueryResult, 0, len(records)-1)
	for line, rec := range records[1:] {
		r, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("reading %s line %d: %w", path, line+2, err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func parseRecord(rec []string) (domain.QueryResult, error) {
	q, err := strconv.Atoi(rec[2])
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("query_number: %w", err)
	}
	run, err := strconv.Atoi(rec[3])
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("run_idx: %w", err)
	}
	r := domain.QueryResult{
		Benchmark:   rec[0],
		Engine:      rec[1],
		QueryNumber: q,
		RunIndex:    run,
		Error:       rec[5],
	}
	if rec[4] != "" {
		v, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return domain.QueryResult{}, fmt.Errorf("elapsed_sec: %w", err)
		}
		r.Elapsed = &v
	}
	return r, nil
}

func writeAtomic(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
