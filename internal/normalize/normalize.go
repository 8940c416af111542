// Package normalize turns untrusted extracted events into validated,
// deduplicated, geocoded records keyed by identity hash.
package normalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/peakgear/gearscout/internal/extract"
	"github.com/peakgear/gearscout/internal/fetch"
	"github.com/peakgear/gearscout/internal/geocode"
)

// Event is a validated, trusted demo-event record. Every field except Time,
// Latitude/Longitude, Notes, and SourceSnippet is non-empty.
type Event struct {
	IdentityHash     string
	Title            string
	Company          string
	Category         string
	Date             string // YYYY-MM-DD, inside the configured window
	Time             *string
	Location         string
	Latitude         *float64
	Longitude        *float64
	Notes            *string
	SourceURLs       []string
	SourcePrimaryURL string
	SourceSnippet    *string
	RawPayload       string
}

// Stats counts rejected extraction records by reason.
type Stats struct {
	MissingRequired int
	OutOfWindow     int
}

// Normalizer validates and canonicalizes extracted events.
type Normalizer struct {
	geocoder     geocode.Geocoder
	windowMonths int
	today        time.Time
}

// New creates a normalizer. geocoder may be nil to skip geocoding; today is
// truncated to a calendar date.
func New(geocoder geocode.Geocoder, windowMonths int, today time.Time) *Normalizer {
	return &Normalizer{
		geocoder:     geocoder,
		windowMonths: windowMonths,
		today:        time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// NormalizeAll validates every extracted event, merges same-run duplicates by
// identity hash, and returns at most candidateCap events ordered by event
// date. Once the deadline passes no further events are dispatched, so no new
// geocode calls start after expiry. A zero deadline means no time limit.
func (n *Normalizer) NormalizeAll(ctx context.Context, pageEvents []extract.PageEvents, candidateCap int, deadline time.Time) ([]Event, *Stats) {
	stats := &Stats{}
	byHash := make(map[string]*Event)
	var order []string

loop:
	for _, pe := range pageEvents {
		for _, raw := range pe.Events {
			if expired(deadline) {
				log.Println("Normalization stopped: run deadline reached")
				break loop
			}
			ev, reason := n.normalizeOne(ctx, raw, pe.Page)
			switch reason {
			case rejectMissing:
				stats.MissingRequired++
				continue
			case rejectWindow:
				stats.OutOfWindow++
				continue
			}

			if existing, ok := byHash[ev.IdentityHash]; ok {
				// Same event described on another page: union sources, keep
				// the first-seen primary attribution, fill gaps the first
				// sighting left empty.
				existing.SourceURLs = unionURLs(existing.SourceURLs, ev.SourceURLs)
				if existing.SourceSnippet == nil {
					existing.SourceSnippet = ev.SourceSnippet
				}
				if existing.Notes == nil {
					existing.Notes = ev.Notes
				}
				continue
			}
			byHash[ev.IdentityHash] = ev
			order = append(order, ev.IdentityHash)
		}
	}

	events := make([]Event, 0, len(order))
	for _, h := range order {
		events = append(events, *byHash[h])
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date < events[j].Date })
	if candidateCap > 0 && len(events) > candidateCap {
		events = events[:candidateCap]
	}

	log.Printf("Normalized %d unique events (%d missing required, %d out of window)",
		len(events), stats.MissingRequired, stats.OutOfWindow)
	return events, stats
}

type rejectReason int

const (
	accepted rejectReason = iota
	rejectMissing
	rejectWindow
)

func (n *Normalizer) normalizeOne(ctx context.Context, raw extract.Event, page fetch.Page) (*Event, rejectReason) {
	title := collapse(raw.Title)
	company := collapse(raw.Company)
	category := strings.ToLower(collapse(raw.Category))
	location := collapse(raw.Location)

	if title == "" || company == "" || location == "" || !extract.IsCategory(category) {
		return nil, rejectMissing
	}

	date, ok := parseDate(raw.Date)
	if !ok {
		return nil, rejectMissing
	}
	if date.Before(n.today) || date.After(n.today.AddDate(0, n.windowMonths, 0)) {
		return nil, rejectWindow
	}
	dateStr := date.Format("2006-01-02")

	ev := &Event{
		IdentityHash:     IdentityHash(category, company, title, dateStr, location),
		Title:            title,
		Company:          company,
		Category:         category,
		Date:             dateStr,
		Time:             canonicalTime(raw.Time),
		Location:         location,
		SourceURLs:       []string{page.URL},
		SourcePrimaryURL: page.URL,
	}
	if notes := collapse(raw.Notes); notes != "" {
		ev.Notes = &notes
	}
	if snippet := strings.TrimSpace(page.Snippet); snippet != "" {
		ev.SourceSnippet = &snippet
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		payload = []byte("{}")
	}
	ev.RawPayload = string(payload)

	// Geocoding never rejects: a miss just leaves coordinates null.
	if n.geocoder != nil {
		if p, _ := n.geocoder.Geocode(ctx, location); p != nil {
			ev.Latitude = &p.Lat
			ev.Longitude = &p.Lng
		}
	}

	return ev, accepted
}

// IdentityHash fingerprints an event from its normalized identity tuple.
// Identical semantic events hash identically regardless of source URL or
// phrasing noise in non-identity fields.
func IdentityHash(category, company, title, date, location string) string {
	parts := []string{category, company, title, date, location}
	for i, p := range parts {
		parts[i] = strings.ToLower(collapse(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// collapse trims and collapses runs of whitespace to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseDate accepts ISO dates and the looser formats extraction models emit.
func parseDate(s string) (time.Time, bool) {
	s = collapse(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

var timeFormats = []string{
	"15:04:05",
	"15:04",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"3pm",
	"3:04 pm",
}

// canonicalTime converts a free-form time string to HH:MM:SS. Anything
// unparseable becomes nil, never a rejection.
func canonicalTime(s string) *string {
	s = collapse(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("15:04:05")
			return &out
		}
	}
	return nil
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func unionURLs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, u := range existing {
		seen[u] = struct{}{}
	}
	for _, u := range incoming {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
