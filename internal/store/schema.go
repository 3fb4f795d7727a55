package store

const schema = `
CREATE TABLE IF NOT EXISTS locations (
    package TEXT NOT NULL,
    base_path TEXT NOT NULL,
    version TEXT NOT NULL,
    author TEXT,
    repository TEXT,
    scanned_at TIMESTAMP NOT NULL,
    PRIMARY KEY (package, base_path, version)
);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    processed INTEGER NOT NULL DEFAULT 0,
    updated INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
    run_id INTEGER NOT NULL,
    package TEXT NOT NULL,
    target TEXT NOT NULL,
    updated_paths TEXT,
    failed_paths TEXT,
    cleaned_paths TEXT,
    skipped BOOLEAN NOT NULL DEFAULT 0,
    skip_reason TEXT,
    PRIMARY KEY (run_id, package),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT
);

CREATE INDEX IF NOT EXISTS idx_locations_package ON locations(package);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
`
