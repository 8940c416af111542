package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func testCandidate(hash string) *Candidate {
	return &Candidate{
		IdentityHash:     hash,
		Title:            "Demo Day",
		Company:          "Acme",
		Category:         "skis",
		EventDate:        "2025-03-01",
		Location:         "Denver, CO",
		SourceURLs:       []string{"https://example.com/events"},
		SourcePrimaryURL: "https://example.com/events",
		RawPayload:       `{"title":"Demo Day"}`,
		FirstSeenAt:      "2025-01-01T00:00:00Z",
		LastSeenAt:       "2025-01-01T00:00:00Z",
	}
}

func TestInsertCandidate(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertCandidate(testCandidate("hash-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero candidate ID")
	}

	c, err := db.GetCandidateByHash("hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected candidate")
	}
	if c.Status != StatusPending {
		t.Errorf("expected pending status, got %q", c.Status)
	}
	if c.SeenCount != 1 {
		t.Errorf("expected seen_count 1, got %d", c.SeenCount)
	}
	if c.AdminEdited {
		t.Error("expected admin_edited false on insert")
	}
}

func TestInsertDuplicateHashFails(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertCandidate(testCandidate("dup")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := db.InsertCandidate(testCandidate("dup")); err == nil {
		t.Error("expected unique constraint error on duplicate hash")
	}
}

func TestGetCandidateByHashMissing(t *testing.T) {
	db := openTestDB(t)
	c, err := db.GetCandidateByHash("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Error("expected nil for missing hash")
	}
}

func TestUpdateCandidateBookkeeping(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertCandidate(testCandidate("hash-bk"))

	err := db.UpdateCandidateBookkeeping(id, &Bookkeeping{
		SourceURLs:    []string{"https://example.com/events", "https://other.com/demo"},
		SourceSnippet: ptr("fresh snippet"),
		RawPayload:    `{"v":2}`,
		SeenAt:        "2025-01-02T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := db.GetCandidateByHash("hash-bk")
	if c.SeenCount != 2 {
		t.Errorf("expected seen_count 2, got %d", c.SeenCount)
	}
	if c.LastSeenAt != "2025-01-02T00:00:00Z" {
		t.Errorf("expected refreshed last_seen_at, got %q", c.LastSeenAt)
	}
	if len(c.SourceURLs) != 2 {
		t.Errorf("expected 2 source urls after union, got %d", len(c.SourceURLs))
	}
	if c.FirstSeenAt != "2025-01-01T00:00:00Z" {
		t.Errorf("expected first_seen_at untouched, got %q", c.FirstSeenAt)
	}
	// Content must be untouched
	if c.Title != "Demo Day" {
		t.Errorf("expected title untouched, got %q", c.Title)
	}
}

func TestUpdateCandidateFull(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertCandidate(testCandidate("hash-full"))

	lat := 39.74
	lng := -104.99
	err := db.UpdateCandidateFull(id, &CandidateContent{
		Title:     "Demo Day Spring",
		Company:   "Acme",
		Category:  "skis",
		EventDate: "2025-03-02",
		EventTime: ptr("10:00:00"),
		Location:  "Denver, Colorado",
		Latitude:  &lat,
		Longitude: &lng,
	}, &Bookkeeping{
		SourceURLs: []string{"https://third.com/page"},
		RawPayload: `{"v":3}`,
		SeenAt:     "2025-01-03T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := db.GetCandidateByHash("hash-full")
	if c.Title != "Demo Day Spring" {
		t.Errorf("expected refreshed title, got %q", c.Title)
	}
	if c.EventTime == nil || *c.EventTime != "10:00:00" {
		t.Error("expected refreshed event time")
	}
	if c.Latitude == nil || *c.Latitude != 39.74 {
		t.Error("expected latitude set")
	}
	if c.SeenCount != 2 {
		t.Errorf("expected seen_count 2, got %d", c.SeenCount)
	}
	if len(c.SourceURLs) != 2 {
		t.Errorf("expected unioned source urls, got %v", c.SourceURLs)
	}
}

func TestSourceSnippetKeptWhenNil(t *testing.T) {
	db := openTestDB(t)
	cand := testCandidate("hash-snip")
	cand.SourceSnippet = ptr("original snippet")
	id, _ := db.InsertCandidate(cand)

	db.UpdateCandidateBookkeeping(id, &Bookkeeping{
		SourceURLs: nil,
		RawPayload: "{}",
		SeenAt:     "2025-01-02T00:00:00Z",
	})

	c, _ := db.GetCandidateByHash("hash-snip")
	if c.SourceSnippet == nil || *c.SourceSnippet != "original snippet" {
		t.Error("expected snippet preserved when update carries none")
	}
}

func TestSetCandidateStatus(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertCandidate(testCandidate("hash-status"))

	if err := db.SetCandidateStatus(id, StatusApproved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ := db.GetCandidateByHash("hash-status")
	if c.Status != StatusApproved {
		t.Errorf("expected approved, got %q", c.Status)
	}
}

func TestEditCandidateContentSetsFlag(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertCandidate(testCandidate("hash-edit"))

	err := db.EditCandidateContent(id, &CandidateContent{
		Title:     "Corrected Title",
		Company:   "Acme",
		Category:  "skis",
		EventDate: "2025-03-01",
		Location:  "Denver, CO",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := db.GetCandidateByHash("hash-edit")
	if !c.AdminEdited {
		t.Error("expected admin_edited true after edit")
	}
	if c.Title != "Corrected Title" {
		t.Errorf("expected edited title, got %q", c.Title)
	}
}

func TestListCandidatesOrderAndFilter(t *testing.T) {
	db := openTestDB(t)
	late := testCandidate("hash-late")
	late.EventDate = "2025-06-01"
	db.InsertCandidate(late)
	early := testCandidate("hash-early")
	early.EventDate = "2025-02-01"
	id, _ := db.InsertCandidate(early)
	db.SetCandidateStatus(id, StatusRejected)

	all, err := db.ListCandidates(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(all))
	}
	if all[0].EventDate != "2025-02-01" {
		t.Errorf("expected earliest event first, got %q", all[0].EventDate)
	}

	pending := StatusPending
	pendingOnly, _ := db.ListCandidates(&pending)
	if len(pendingOnly) != 1 {
		t.Errorf("expected 1 pending candidate, got %d", len(pendingOnly))
	}
}

func TestPublishedEvents(t *testing.T) {
	db := openTestDB(t)

	has, err := db.HasPublished("hash-pub")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Error("expected no published event")
	}

	_, err = db.InsertPublishedEvent(&PublishedEvent{
		IdentityHash: "hash-pub",
		Title:        "Demo Day",
		Company:      "Acme",
		Category:     "skis",
		EventDate:    "2025-03-01",
		Location:     "Denver, CO",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	has, _ = db.HasPublished("hash-pub")
	if !has {
		t.Error("expected published event found")
	}
}

func TestRunReports(t *testing.T) {
	db := openTestDB(t)

	last, err := db.GetLastRun()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last != nil {
		t.Error("expected nil before any run")
	}

	_, err = db.InsertRunReport(&RunReport{
		RunID:          "run-1",
		TriggerSource:  "manual",
		StartedAt:      "2025-01-01T06:00:00Z",
		FinishedAt:     ptr("2025-01-01T06:03:00Z"),
		RuntimeLimited: true,
		NewCandidates:  3,
		TotalProcessed: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.InsertRunReport(&RunReport{
		RunID:         "run-2",
		TriggerSource: "scheduled",
		StartedAt:     "2025-01-02T06:00:00Z",
	})

	last, _ = db.GetLastRun()
	if last == nil || last.RunID != "run-2" {
		t.Fatal("expected most recent run")
	}

	runs, _ := db.ListRuns(10)
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	if !runs[1].RuntimeLimited {
		t.Error("expected runtime_limited persisted")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalCandidates != 0 {
		t.Errorf("expected 0 candidates, got %d", stats.TotalCandidates)
	}

	id, _ := db.InsertCandidate(testCandidate("hash-s1"))
	db.SetCandidateStatus(id, StatusApproved)
	db.InsertCandidate(testCandidate("hash-s2"))

	stats, _ = db.GetStats()
	if stats.TotalCandidates != 2 {
		t.Errorf("expected 2 candidates, got %d", stats.TotalCandidates)
	}
	if stats.ApprovedCandidates != 1 {
		t.Errorf("expected 1 approved, got %d", stats.ApprovedCandidates)
	}
	if stats.PendingCandidates != 1 {
		t.Errorf("expected 1 pending, got %d", stats.PendingCandidates)
	}
}
