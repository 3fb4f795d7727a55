package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackwell-systems/pkgup/internal/pipeline"
	"github.com/blackwell-systems/pkgup/internal/scanner"
	"github.com/blackwell-systems/pkgup/internal/version"
)

// Run is one recorded pipeline run with its summary counts.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Updated    int
	Failed     int
	Skipped    int
}

const staleKey = "inventory_stale"

// SaveInventory replaces the cached inventory with the given scan result and
// clears the staleness flag.
func (s *Store) SaveInventory(inv *scanner.Inventory) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM locations"); err != nil {
		return fmt.Errorf("failed to clear cached inventory: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, pkg := range inv.Packages {
		for _, loc := range pkg.Locations {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO locations
				(package, base_path, version, author, repository, scanned_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, pkg.Name, loc.BasePath, loc.RawVersion, loc.Author, loc.Repository, now)
			if err != nil {
				return fmt.Errorf("failed to insert location for %s: %w", pkg.Name, err)
			}
		}
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, staleKey, "0"); err != nil {
		return fmt.Errorf("failed to clear staleness flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit inventory: %w", err)
	}
	return nil
}

// LoadInventory returns the cached inventory from the last scan, packages
// ordered by name and locations by base path.
func (s *Store) LoadInventory() (*scanner.Inventory, error) {
	rows, err := s.db.Query(`
		SELECT package, base_path, version, author, repository
		FROM locations
		ORDER BY package COLLATE NOCASE, base_path, version
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	defer rows.Close()

	inv := &scanner.Inventory{}
	var current *scanner.Package
	for rows.Next() {
		var name, basePath, rawVersion string
		var author, repository sql.NullString
		if err := rows.Scan(&name, &basePath, &rawVersion, &author, &repository); err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}

		if current == nil || current.Name != name {
			inv.Packages = append(inv.Packages, scanner.Package{Name: name})
			current = &inv.Packages[len(inv.Packages)-1]
		}

		loc := scanner.Location{
			BasePath:   basePath,
			RawVersion: rawVersion,
			Author:     author.String,
			Repository: repository.String,
		}
		if v, ok := version.Parse(rawVersion); ok {
			loc.Version = &v
		}
		current.Locations = append(current.Locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inventory rows: %w", err)
	}
	return inv, nil
}

// MarkStale flags the cached inventory as out of date (set by the watcher
// when manifests change under a search root).
func (s *Store) MarkStale() error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, staleKey, "1"); err != nil {
		return fmt.Errorf("failed to set staleness flag: %w", err)
	}
	return nil
}

// IsStale reports whether the cached inventory has been flagged stale.
// An empty cache is always stale.
func (s *Store) IsStale() (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM locations`).Scan(&count); err != nil {
		return true, fmt.Errorf("failed to count cached locations: %w", err)
	}
	if count == 0 {
		return true, nil
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, staleKey).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("failed to read staleness flag: %w", err)
	}
	return value == "1", nil
}

// BeginRun records the start of a pipeline run and returns its id.
func (s *Store) BeginRun(startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO runs (started_at) VALUES (?)`, startedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcomes and summary counts of a completed run.
func (s *Store) FinishRun(runID int64, finishedAt time.Time, outcomes []pipeline.Outcome) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var updated, failed, skipped int
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.OverallSuccess:
			updated++
		default:
			failed++
		}

		updatedJSON, err := json.Marshal(o.UpdatedPaths)
		if err != nil {
			return fmt.Errorf("failed to marshal updated paths: %w", err)
		}
		failedJSON, err := json.Marshal(o.FailedPaths)
		if err != nil {
			return fmt.Errorf("failed to marshal failed paths: %w", err)
		}
		cleanedJSON, err := json.Marshal(o.CleanedPaths)
		if err != nil {
			return fmt.Errorf("failed to marshal cleaned paths: %w", err)
		}

		_, err = tx.Exec(`
			INSERT OR REPLACE INTO outcomes
			(run_id, package, target, updated_paths, failed_paths, cleaned_paths, skipped, skip_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, o.Name, o.Target, string(updatedJSON), string(failedJSON), string(cleanedJSON), o.Skipped, o.SkipReason)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", o.Name, err)
		}
	}

	_, err = tx.Exec(`
		UPDATE runs SET finished_at = ?, processed = ?, updated = ?, failed = ?, skipped = ?
		WHERE id = ?
	`, finishedAt.UTC().Format(time.RFC3339), len(outcomes), updated, failed, skipped, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %d: %w", runID, err)
	}
	return nil
}

// ListRuns returns recorded runs, most recent first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, processed, updated, failed, skipped
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.Processed, &r.Updated, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("failed to parse run start time: %w", err)
		}
		if finished.Valid {
			if r.FinishedAt, err = time.Parse(time.RFC3339, finished.String); err != nil {
				return nil, fmt.Errorf("failed to parse run finish time: %w", err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunOutcomes returns the per-package outcomes of one run, ordered by
// package name.
func (s *Store) RunOutcomes(runID int64) ([]pipeline.Outcome, error) {
	rows, err := s.db.Query(`
		SELECT package, target, updated_paths, failed_paths, cleaned_paths, skipped, skip_reason
		FROM outcomes
		WHERE run_id = ?
		ORDER BY package COLLATE NOCASE
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes for run %d: %w", runID, err)
	}
	defer rows.Close()

	var outcomes []pipeline.Outcome
	for rows.Next() {
		var o pipeline.Outcome
		var updatedJSON, failedJSON, cleanedJSON string
		var skipReason sql.NullString
		if err := rows.Scan(&o.Name, &o.Target, &updatedJSON, &failedJSON, &cleanedJSON, &o.Skipped, &skipReason); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		if err := json.Unmarshal([]byte(updatedJSON), &o.UpdatedPaths); err != nil {
			return nil, fmt.Errorf("failed to unmarshal updated paths: %w", err)
		}
		if err := json.Unmarshal([]byte(failedJSON), &o.FailedPaths); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed paths: %w", err)
		}
		if err := json.Unmarshal([]byte(cleanedJSON), &o.CleanedPaths); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cleaned paths: %w", err)
		}
		o.SkipReason = skipReason.String
		o.OverallSuccess = !o.Skipped && len(o.FailedPaths) == 0 && len(o.UpdatedPaths) > 0
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
