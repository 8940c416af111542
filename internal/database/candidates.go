package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

const candidateColumns = `id, identity_hash, title, company, category, event_date, event_time,
	location, latitude, longitude, notes, source_urls, source_primary_url, source_snippet,
	raw_payload, status, seen_count, first_seen_at, last_seen_at, admin_edited, created_at, updated_at`

// InsertCandidate inserts a new pending candidate with seen_count = 1.
func (db *DB) InsertCandidate(c *Candidate) (int64, error) {
	urls, err := json.Marshal(c.SourceURLs)
	if err != nil {
		return 0, fmt.Errorf("encoding source urls: %w", err)
	}

	result, err := db.conn.Exec(
		`INSERT INTO candidates (identity_hash, title, company, category, event_date, event_time,
			location, latitude, longitude, notes, source_urls, source_primary_url, source_snippet,
			raw_payload, status, seen_count, first_seen_at, last_seen_at, admin_edited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', 1, ?, ?, 0)`,
		c.IdentityHash, c.Title, c.Company, c.Category, c.EventDate, c.EventTime,
		c.Location, c.Latitude, c.Longitude, c.Notes, string(urls), c.SourcePrimaryURL,
		c.SourceSnippet, c.RawPayload, c.FirstSeenAt, c.LastSeenAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting candidate: %w", err)
	}
	return result.LastInsertId()
}

// GetCandidateByHash returns the candidate with the given identity hash, or nil.
func (db *DB) GetCandidateByHash(hash string) (*Candidate, error) {
	row := db.conn.QueryRow(
		`SELECT `+candidateColumns+` FROM candidates WHERE identity_hash = ?`, hash,
	)
	return scanCandidate(row)
}

// GetCandidateByID returns a candidate by row ID, or nil.
func (db *DB) GetCandidateByID(id int64) (*Candidate, error) {
	row := db.conn.QueryRow(
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id,
	)
	return scanCandidate(row)
}

// UpdateCandidateBookkeeping refreshes seen_count, last_seen_at, source_urls,
// source_snippet, and raw_payload. Content fields are untouched, so it is
// safe against approved, rejected, and admin-edited rows.
func (db *DB) UpdateCandidateBookkeeping(id int64, bk *Bookkeeping) error {
	existing, err := db.GetCandidateByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("candidate %d not found", id)
	}

	urls, err := json.Marshal(unionURLs(existing.SourceURLs, bk.SourceURLs))
	if err != nil {
		return fmt.Errorf("encoding source urls: %w", err)
	}

	_, err = db.conn.Exec(
		`UPDATE candidates SET seen_count = seen_count + 1, last_seen_at = ?,
			source_urls = ?, source_snippet = COALESCE(?, source_snippet),
			raw_payload = ?, updated_at = datetime('now')
		WHERE id = ?`,
		bk.SeenAt, string(urls), bk.SourceSnippet, bk.RawPayload, id,
	)
	if err != nil {
		return fmt.Errorf("updating candidate bookkeeping: %w", err)
	}
	return nil
}

// UpdateCandidateFull refreshes bookkeeping and overwrites content fields with
// freshly discovered values. Only valid while the row is pending and not
// admin-edited; the reconciler enforces that.
func (db *DB) UpdateCandidateFull(id int64, content *CandidateContent, bk *Bookkeeping) error {
	existing, err := db.GetCandidateByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("candidate %d not found", id)
	}

	urls, err := json.Marshal(unionURLs(existing.SourceURLs, bk.SourceURLs))
	if err != nil {
		return fmt.Errorf("encoding source urls: %w", err)
	}

	_, err = db.conn.Exec(
		`UPDATE candidates SET title = ?, company = ?, category = ?, event_date = ?,
			event_time = ?, location = ?, latitude = ?, longitude = ?, notes = ?,
			seen_count = seen_count + 1, last_seen_at = ?, source_urls = ?,
			source_snippet = COALESCE(?, source_snippet), raw_payload = ?,
			updated_at = datetime('now')
		WHERE id = ?`,
		content.Title, content.Company, content.Category, content.EventDate,
		content.EventTime, content.Location, content.Latitude, content.Longitude,
		content.Notes, bk.SeenAt, string(urls), bk.SourceSnippet, bk.RawPayload, id,
	)
	if err != nil {
		return fmt.Errorf("updating candidate: %w", err)
	}
	return nil
}

// SetCandidateStatus records a review verdict. Used by the review surface,
// never by the pipeline.
func (db *DB) SetCandidateStatus(id int64, status Status) error {
	_, err := db.conn.Exec(
		"UPDATE candidates SET status = ?, updated_at = datetime('now') WHERE id = ?",
		string(status), id,
	)
	return err
}

// EditCandidateContent applies a human edit to content fields and sets the
// admin_edited flag, freezing pipeline content overwrites.
func (db *DB) EditCandidateContent(id int64, content *CandidateContent) error {
	_, err := db.conn.Exec(
		`UPDATE candidates SET title = ?, company = ?, category = ?, event_date = ?,
			event_time = ?, location = ?, latitude = ?, longitude = ?, notes = ?,
			admin_edited = 1, updated_at = datetime('now')
		WHERE id = ?`,
		content.Title, content.Company, content.Category, content.EventDate,
		content.EventTime, content.Location, content.Latitude, content.Longitude,
		content.Notes, id,
	)
	return err
}

// ListCandidates returns candidates ordered by event date, optionally
// filtered by status.
func (db *DB) ListCandidates(status *Status) ([]Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY event_date ASC, id ASC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		c, err := scanCandidateRow(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

// GetStats returns aggregate store statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	err := db.conn.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(status = 'pending'), 0),
		COALESCE(SUM(status = 'approved'), 0),
		COALESCE(SUM(status = 'rejected'), 0)
		FROM candidates`).Scan(&s.TotalCandidates, &s.PendingCandidates, &s.ApprovedCandidates, &s.RejectedCandidates)
	if err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM published_events").Scan(&s.PublishedEvents); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM discovery_runs").Scan(&s.TotalRuns); err != nil {
		return nil, err
	}
	return s, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInto(row scannable) (*Candidate, error) {
	var c Candidate
	var urls, status string
	var edited int
	err := row.Scan(&c.ID, &c.IdentityHash, &c.Title, &c.Company, &c.Category,
		&c.EventDate, &c.EventTime, &c.Location, &c.Latitude, &c.Longitude,
		&c.Notes, &urls, &c.SourcePrimaryURL, &c.SourceSnippet, &c.RawPayload,
		&status, &c.SeenCount, &c.FirstSeenAt, &c.LastSeenAt, &edited,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(urls), &c.SourceURLs); err != nil {
		return nil, fmt.Errorf("decoding source urls: %w", err)
	}
	c.Status = Status(status)
	c.AdminEdited = edited != 0
	return &c, nil
}

func scanCandidate(row *sql.Row) (*Candidate, error) {
	c, err := scanInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func scanCandidateRow(rows *sql.Rows) (*Candidate, error) {
	return scanInto(rows)
}

// unionURLs appends URLs from incoming not already present, preserving order.
func unionURLs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, u := range existing {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	for _, u := range incoming {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
