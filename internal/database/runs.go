package database

import (
	"database/sql"
	"fmt"
)

const runColumns = `id, run_id, trigger_source, started_at, finished_at, runtime_limited,
	queries_executed, scanned_urls, scraped_pages, parsed_pages, unique_events,
	new_candidates, updated_pending, skipped_approved, skipped_rejected,
	skipped_missing_required, skipped_out_of_window, total_processed`

// InsertRunReport persists the audit record of a finished discovery run.
func (db *DB) InsertRunReport(r *RunReport) (int64, error) {
	limited := 0
	if r.RuntimeLimited {
		limited = 1
	}
	result, err := db.conn.Exec(
		`INSERT INTO discovery_runs (run_id, trigger_source, started_at, finished_at,
			runtime_limited, queries_executed, scanned_urls, scraped_pages, parsed_pages,
			unique_events, new_candidates, updated_pending, skipped_approved,
			skipped_rejected, skipped_missing_required, skipped_out_of_window, total_processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.TriggerSource, r.StartedAt, r.FinishedAt, limited,
		r.QueriesExecuted, r.ScannedURLs, r.ScrapedPages, r.ParsedPages,
		r.UniqueEvents, r.NewCandidates, r.UpdatedPending, r.SkippedApproved,
		r.SkippedRejected, r.SkippedMissingRequired, r.SkippedOutOfWindow, r.TotalProcessed,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run report: %w", err)
	}
	return result.LastInsertId()
}

// GetLastRun returns the most recent run report, or nil if none exist.
func (db *DB) GetLastRun() (*RunReport, error) {
	row := db.conn.QueryRow(
		`SELECT ` + runColumns + ` FROM discovery_runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRuns returns run reports, newest first, capped to limit.
func (db *DB) ListRuns(limit int) ([]RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT `+runColumns+` FROM discovery_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunReport
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(row scannable) (*RunReport, error) {
	var r RunReport
	var limited int
	err := row.Scan(&r.ID, &r.RunID, &r.TriggerSource, &r.StartedAt, &r.FinishedAt,
		&limited, &r.QueriesExecuted, &r.ScannedURLs, &r.ScrapedPages, &r.ParsedPages,
		&r.UniqueEvents, &r.NewCandidates, &r.UpdatedPending, &r.SkippedApproved,
		&r.SkippedRejected, &r.SkippedMissingRequired, &r.SkippedOutOfWindow, &r.TotalProcessed)
	if err != nil {
		return nil, err
	}
	r.RuntimeLimited = limited != 0
	return &r, nil
}
