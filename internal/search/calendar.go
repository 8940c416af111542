package search

import (
	"log"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/peakgear/gearscout/internal/config"
)

const maxPerCalendar = 20

// CalendarScanner reads configured RSS/Atom event calendars and turns their
// entries into search results, so calendar listings flow through the same
// blocklist/dedup/budget gate as web search hits.
type CalendarScanner struct {
	calendars []config.Calendar
}

// NewCalendarScanner creates a scanner for the configured calendars.
func NewCalendarScanner(calendars []config.Calendar) *CalendarScanner {
	return &CalendarScanner{calendars: calendars}
}

// ScanAll parses all configured calendars. Per-feed failures are logged and
// skipped.
func (s *CalendarScanner) ScanAll() []Result {
	parser := gofeed.NewParser()

	var all []Result
	for _, cal := range s.calendars {
		feed, err := parser.ParseURL(cal.URL)
		if err != nil {
			log.Printf("Failed to parse calendar %s: %v", cal.URL, err)
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= maxPerCalendar {
				break
			}
			r := calendarItem(item)
			if r == nil {
				continue
			}
			all = append(all, *r)
			count++
		}
		log.Printf("Scanned %d entries from calendar %s", count, calendarName(cal, feed))
	}
	return all
}

func calendarItem(item *gofeed.Item) *Result {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil
	}

	snippet := strings.TrimSpace(item.Description)
	if len(snippet) > 300 {
		snippet = snippet[:300]
	}

	return &Result{
		Title:        title,
		URL:          link,
		Snippet:      snippet,
		SourceDomain: domainOf(link),
	}
}

func calendarName(cal config.Calendar, feed *gofeed.Feed) string {
	if cal.Name != "" {
		return cal.Name
	}
	if feed.Title != "" {
		return feed.Title
	}
	return cal.URL
}
