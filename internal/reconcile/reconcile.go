// Package reconcile applies normalized events to the candidate store via an
// idempotent upsert keyed by identity hash. Re-running discovery over the same
// sources updates bookkeeping but never duplicates rows, never resurrects a
// rejected event, and never overwrites a reviewer's decisions.
package reconcile

import (
	"fmt"
	"log"
	"time"

	"github.com/peakgear/gearscout/internal/database"
	"github.com/peakgear/gearscout/internal/normalize"
)

// Action is the reconciliation decision for one normalized event.
type Action int

const (
	// Insert creates a new pending candidate.
	Insert Action = iota
	// FullUpdate refreshes content and bookkeeping of a pending candidate.
	FullUpdate
	// BookkeepingUpdate refreshes only seen-tracking and source provenance.
	// Used for reviewed candidates and admin-edited pending ones.
	BookkeepingUpdate
	// SkipPublished means the event already graduated out of the review
	// queue. No write happens at all.
	SkipPublished
)

// Decide picks the action for an event given its current store state.
func Decide(exists bool, status database.Status, adminEdited, published bool) Action {
	switch {
	case published:
		return SkipPublished
	case !exists:
		return Insert
	case status != database.StatusPending:
		return BookkeepingUpdate
	case adminEdited:
		return BookkeepingUpdate
	default:
		return FullUpdate
	}
}

// Stats counts reconciliation outcomes for one run.
type Stats struct {
	NewCandidates   int
	UpdatedPending  int
	SkippedApproved int
	SkippedRejected int
	TotalProcessed  int
}

// Reconciler upserts normalized events into the store.
type Reconciler struct {
	db *database.DB
}

func New(db *database.DB) *Reconciler {
	return &Reconciler{db: db}
}

// ReconcileAll applies events in order. Events are processed sequentially so
// a store error aborts the run with partial stats intact; everything applied
// before the failure stays applied. Once the deadline passes remaining events
// are not dispatched; prior writes stand. A zero deadline means no time
// limit.
func (r *Reconciler) ReconcileAll(events []normalize.Event, seenAt time.Time, deadline time.Time) (*Stats, error) {
	stats := &Stats{}
	for i := range events {
		if expired(deadline) {
			log.Println("Reconciliation stopped: run deadline reached")
			break
		}
		if err := r.reconcileOne(&events[i], seenAt, stats); err != nil {
			return stats, fmt.Errorf("reconciling %s: %w", events[i].IdentityHash, err)
		}
		stats.TotalProcessed++
	}
	log.Printf("Reconciled %d events: %d new, %d updated, %d approved/published skips, %d rejected skips",
		stats.TotalProcessed, stats.NewCandidates, stats.UpdatedPending,
		stats.SkippedApproved, stats.SkippedRejected)
	return stats, nil
}

func (r *Reconciler) reconcileOne(ev *normalize.Event, seenAt time.Time, stats *Stats) error {
	published, err := r.db.HasPublished(ev.IdentityHash)
	if err != nil {
		return fmt.Errorf("checking published events: %w", err)
	}

	var existing *database.Candidate
	if !published {
		existing, err = r.db.GetCandidateByHash(ev.IdentityHash)
		if err != nil {
			return fmt.Errorf("looking up candidate: %w", err)
		}
	}

	var status database.Status
	var adminEdited bool
	if existing != nil {
		status = existing.Status
		adminEdited = existing.AdminEdited
	}

	switch Decide(existing != nil, status, adminEdited, published) {
	case SkipPublished:
		stats.SkippedApproved++
		return nil

	case Insert:
		if _, err := r.db.InsertCandidate(candidateFrom(ev, seenAt)); err != nil {
			return fmt.Errorf("inserting candidate: %w", err)
		}
		stats.NewCandidates++
		return nil

	case FullUpdate:
		if err := r.db.UpdateCandidateFull(existing.ID, contentFrom(ev), bookkeepingFrom(ev, seenAt)); err != nil {
			return fmt.Errorf("updating candidate: %w", err)
		}
		stats.UpdatedPending++
		return nil

	default: // BookkeepingUpdate
		if err := r.db.UpdateCandidateBookkeeping(existing.ID, bookkeepingFrom(ev, seenAt)); err != nil {
			return fmt.Errorf("updating candidate bookkeeping: %w", err)
		}
		switch {
		case status == database.StatusRejected:
			stats.SkippedRejected++
		case status == database.StatusApproved:
			stats.SkippedApproved++
		default:
			// Admin-edited pending: content is protected, but it is still
			// an update to a live review item.
			stats.UpdatedPending++
		}
		return nil
	}
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func candidateFrom(ev *normalize.Event, seenAt time.Time) *database.Candidate {
	ts := seenAt.UTC().Format("2006-01-02 15:04:05")
	return &database.Candidate{
		IdentityHash:     ev.IdentityHash,
		Title:            ev.Title,
		Company:          ev.Company,
		Category:         ev.Category,
		EventDate:        ev.Date,
		EventTime:        ev.Time,
		Location:         ev.Location,
		Latitude:         ev.Latitude,
		Longitude:        ev.Longitude,
		Notes:            ev.Notes,
		SourceURLs:       ev.SourceURLs,
		SourcePrimaryURL: ev.SourcePrimaryURL,
		SourceSnippet:    ev.SourceSnippet,
		RawPayload:       ev.RawPayload,
		FirstSeenAt:      ts,
		LastSeenAt:       ts,
	}
}

func contentFrom(ev *normalize.Event) *database.CandidateContent {
	return &database.CandidateContent{
		Title:     ev.Title,
		Company:   ev.Company,
		Category:  ev.Category,
		EventDate: ev.Date,
		EventTime: ev.Time,
		Location:  ev.Location,
		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,
		Notes:     ev.Notes,
	}
}

func bookkeepingFrom(ev *normalize.Event, seenAt time.Time) *database.Bookkeeping {
	return &database.Bookkeeping{
		SourceURLs:    ev.SourceURLs,
		SourceSnippet: ev.SourceSnippet,
		RawPayload:    ev.RawPayload,
		SeenAt:        seenAt.UTC().Format("2006-01-02 15:04:05"),
	}
}
