package database

import "fmt"

// HasPublished reports whether an event with this identity hash already
// graduated out of the review queue.
func (db *DB) HasPublished(hash string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM published_events WHERE identity_hash = ?", hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking published events: %w", err)
	}
	return count > 0, nil
}

// InsertPublishedEvent records a graduated event. Used by the publish surface,
// never by the pipeline.
func (db *DB) InsertPublishedEvent(e *PublishedEvent) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO published_events (identity_hash, title, company, category, event_date, location)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.IdentityHash, e.Title, e.Company, e.Category, e.EventDate, e.Location,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting published event: %w", err)
	}
	return result.LastInsertId()
}
