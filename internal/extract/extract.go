// Package extract pulls structured demo-event records out of fetched page
// text using the extraction model.
package extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/peakgear/gearscout/internal/fetch"
	"github.com/peakgear/gearscout/internal/llm"
)

// Categories is the closed vocabulary of gear categories. The extraction
// model is instructed to use only these; the normalizer rejects anything
// else.
var Categories = []string{"skis", "snowboards", "bikes", "climbing", "paddling", "camping"}

// IsCategory reports whether s is in the closed vocabulary.
func IsCategory(s string) bool {
	for _, c := range Categories {
		if s == c {
			return true
		}
	}
	return false
}

const maxContentChars = 6000

const extractPrompt = `You are extracting gear demo events from a web page for a rental marketplace.

A demo event is a scheduled occasion where an outdoor gear brand or shop lets the public try equipment: demo days, try-before-you-buy events, on-snow or on-trail demos.

Today's date is %s. Resolve relative dates ("next Saturday", "this spring") against it.

Allowed categories (use EXACTLY one of these strings): %s

Page content:
%s

Respond with ONLY a JSON array. Each element:
{
    "title": "event name",
    "company": "brand or shop running the demo",
    "category": "one of the allowed categories",
    "date": "YYYY-MM-DD",
    "time": "start time if stated, else empty string",
    "location": "venue, city, and region as stated",
    "notes": "anything else useful for a reviewer, else empty string"
}

title, company, category, date, and location are required; omit events where you cannot determine them.
If the page describes no qualifying demo event, respond with exactly: []`

// Event is one untrusted record emitted by the extraction model for a page.
// Every field is an unvalidated string.
type Event struct {
	Title    string
	Company  string
	Category string
	Date     string
	Time     string
	Location string
	Notes    string
}

// PageEvents associates extracted events with the page they came from, which
// the normalizer needs for dedup merging and source attribution.
type PageEvents struct {
	Page   fetch.Page
	Events []Event
}

// Result holds the results of an extraction pass.
type Result struct {
	PageEvents  []PageEvents
	ParsedPages int
}

// Extractor runs the extraction model over fetched pages.
type Extractor struct {
	provider    llm.Provider
	concurrency int
	maxTokens   int
}

// NewExtractor creates an extractor with the given worker count.
func NewExtractor(provider llm.Provider, concurrency, maxTokens int) *Extractor {
	if concurrency <= 0 {
		concurrency = 2
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Extractor{provider: provider, concurrency: concurrency, maxTokens: maxTokens}
}

// ExtractAll processes the pages under the extraction pool. Model failures
// and unparseable output count as zero events for that page, never as a run
// failure. A zero deadline means no time limit.
func (e *Extractor) ExtractAll(ctx context.Context, pages []fetch.Page, today time.Time, deadline time.Time) *Result {
	if e.provider == nil || len(pages) == 0 {
		return &Result{}
	}

	slots := make([]*PageEvents, len(pages))
	var cursor atomic.Int64
	var parsed atomic.Int64

	var g errgroup.Group
	workers := e.concurrency
	if workers > len(pages) {
		workers = len(pages)
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(pages) {
					return nil
				}
				if expired(deadline) {
					return nil
				}

				events, ok := e.extractPage(ctx, pages[i], today)
				if ok {
					parsed.Add(1)
				}
				if len(events) > 0 {
					slots[i] = &PageEvents{Page: pages[i], Events: events}
				}
			}
		})
	}
	g.Wait()

	result := &Result{ParsedPages: int(parsed.Load())}
	for _, s := range slots {
		if s != nil {
			result.PageEvents = append(result.PageEvents, *s)
		}
	}

	total := 0
	for _, pe := range result.PageEvents {
		total += len(pe.Events)
	}
	log.Printf("Extraction complete: %d events from %d/%d pages", total, result.ParsedPages, len(pages))
	return result
}

// extractPage returns the events for one page and whether the model response
// parsed cleanly.
func (e *Extractor) extractPage(ctx context.Context, page fetch.Page, today time.Time) ([]Event, bool) {
	content := page.TextContent
	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "..."
	}

	prompt := fmt.Sprintf(extractPrompt,
		today.Format("2006-01-02"),
		strings.Join(Categories, ", "),
		content,
	)

	response, err := e.provider.Generate(ctx, prompt, e.maxTokens)
	if err != nil {
		log.Printf("Extraction failed for %s: %v", page.URL, err)
		return nil, false
	}

	parsed := llm.ParseJSONArray(response)
	if parsed == nil {
		log.Printf("Unparseable extraction output for %s", page.URL)
		return nil, false
	}

	var events []Event
	for _, raw := range parsed {
		events = append(events, Event{
			Title:    getString(raw, "title"),
			Company:  getString(raw, "company"),
			Category: getString(raw, "category"),
			Date:     getString(raw, "date"),
			Time:     getString(raw, "time"),
			Location: getString(raw, "location"),
			Notes:    getString(raw, "notes"),
		})
	}
	return events, true
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}
