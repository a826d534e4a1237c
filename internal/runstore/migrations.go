package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    config_path TEXT,
    results_dir TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    batches_finished INTEGER DEFAULT 0,
    batches_failed INTEGER DEFAULT 0,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS batches (
    run_id TEXT NOT NULL REFERENCES runs(id),
    batch_id INTEGER NOT NULL,
    benchmark TEXT NOT NULL,
    engine TEXT NOT NULL,
    query_start INTEGER NOT NULL,
    query_end INTEGER NOT NULL,
    repeat_count INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    result_path TEXT,
    launched_at TIMESTAMP,
    finished_at TIMESTAMP,
    error TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, batch_id)
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
`
