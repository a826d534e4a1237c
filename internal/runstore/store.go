// Package runstore keeps a SQLite ledger of scheduler runs and the status
// history of their batches.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// ErrNoRuns is returned when the ledger holds no run yet
var ErrNoRuns = errors.New("no runs recorded")

// Store provides SQLite-backed run persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Run is one scheduler invocation
type Run struct {
	ID         string
	ConfigPath string
	ResultsDir string
	StartedAt  time.Time
	FinishedAt *time.Time
	Finished   int
	Failed     int
	Error      string
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new run and returns it with a fresh ID
func (s *Store) StartRun(configPath, resultsDir string) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		ConfigPath: configPath,
		ResultsDir: resultsDir,
		StartedAt:  s.now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, config_path, results_dir, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.ConfigPath, run.ResultsDir, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome of a run. runErr may be nil.
func (s *Store) FinishRun(id string, finished, failed int, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, batches_finished = ?, batches_failed = ?, error = ?
		WHERE id = ?
	`, s.now().UTC(), finished, failed, msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, config_path, results_dir, started_at, finished_at, batches_finished, batches_failed, error
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// LatestRun returns the most recently started run
func (s *Store) LatestRun() (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, config_path, results_dir, started_at, finished_at, batches_finished, batches_failed, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	return run, err
}

// UpsertBatch inserts or updates a batch of a run
func (s *Store) UpsertBatch(runID string, b *domain.Batch) error {
	var errMsg sql.NullString
	if b.Error != "" {
		errMsg = sql.NullString{String: b.Error, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO batches (run_id, batch_id, benchmark, engine, query_start, query_end, repeat_count, status, result_path, launched_at, finished_at, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, batch_id) DO UPDATE SET
			status = excluded.status,
			launched_at = excluded.launched_at,
			finished_at = excluded.finished_at,
			error = excluded.error,
			updated_at = excluded.updated_at
	`,
		runID,
		b.ID,
		b.Benchmark,
		b.Engine,
		b.Range.Start,
		b.Range.End,
		b.RepeatCount,
		string(b.Status),
		b.ResultPath,
		nullTime(b.LaunchedAt),
		nullTime(b.FinishedAt),
		errMsg,
		s.now().UTC(),
	)
	return err
}

// ListOptions specifies filters for listing batches
type ListOptions struct {
	Status domain.BatchStatus
	Engine string
}

// ListBatches returns the batches of a run in ID order
func (s *Store) ListBatches(runID string, opts ListOptions) ([]*domain.Batch, error) {
	query := `SELECT batch_id, benchmark, engine, query_start, query_end, repeat_count, status, result_path, launched_at, finished_at, error FROM batches WHERE run_id = ?`
	args := []interface{}{runID}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.Engine != "" {
		query += " AND engine = ?"
		args = append(args, opts.Engine)
	}

	query += " ORDER BY batch_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}

	return batches, rows.Err()
}

// CountByStatus returns how many batches of a run are in each status
func (s *Store) CountByStatus(runID string) (map[domain.BatchStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM batches WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.BatchStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.BatchStatus(status)] = n
	}
	return counts, rows.Err()
}

// Recorder returns a scheduler recorder bound to one run
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

// Recorder writes batch transitions of one run into the ledger
type Recorder struct {
	store *Store
	runID string
}

// RecordBatch implements scheduler.Recorder
func (r *Recorder) RecordBatch(b *domain.Batch) error {
	return r.store.UpsertBatch(r.runID, b)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var configPath, resultsDir, errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &configPath, &resultsDir, &run.StartedAt, &finishedAt, &run.Finished, &run.Failed, &errMsg)
	if err != nil {
		return nil, err
	}

	run.ConfigPath = configPath.String
	run.ResultsDir = resultsDir.String
	run.Error = errMsg.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func scanBatch(row scanner) (*domain.Batch, error) {
	var b domain.Batch
	var status string
	var resultPath, errMsg sql.NullString
	var launchedAt, finishedAt sql.NullTime

	err := row.Scan(&b.ID, &b.Benchmark, &b.Engine, &b.Range.Start, &b.Range.End, &b.RepeatCount, &status, &resultPath, &launchedAt, &finishedAt, &errMsg)
	if err != nil {
		return nil, err
	}

	b.Status = domain.BatchStatus(status)
	b.ResultPath = resultPath.String
	b.Error = errMsg.String
	if launchedAt.Valid {
		t := launchedAt.Time
		b.LaunchedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		b.FinishedAt = &t
	}
	return &b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
