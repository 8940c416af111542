// Package search collects candidate URLs for a discovery run from event
// calendars and a web search provider, under URL and query budgets.
package search

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"
)

// blockedDomains are aggregators, social networks, government portals, and
// search engines: pages that describe many events generically or nothing at
// all, never a single demo worth extracting.
var blockedDomains = []string{
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"linkedin.com",
	"tiktok.com",
	"youtube.com",
	"reddit.com",
	"pinterest.com",
	"eventbrite.com",
	"meetup.com",
	"yelp.com",
	"tripadvisor.com",
	"groupon.com",
	"craigslist.org",
	"wikipedia.org",
	"google.com",
	"bing.com",
	"duckduckgo.com",
	"search.brave.com",
	"usa.gov",
	"recreation.gov",
}

// URLBudget derives the URL budget from the candidate cap: three pages per
// wanted candidate, clamped to [10, 60].
func URLBudget(candidateCap int) int {
	budget := candidateCap * 3
	if budget < 10 {
		budget = 10
	}
	if budget > 60 {
		budget = 60
	}
	return budget
}

// CollectStats reports the collector's coverage for the run statistics.
type CollectStats struct {
	QueriesExecuted int
	ScannedURLs     int
}

// Collector gathers candidate URLs from calendars and the search provider
// until a budget or the run deadline is hit.
type Collector struct {
	provider   Provider
	calendars  *CalendarScanner
	urlBudget  int
	maxQueries int
}

// NewCollector creates a collector. provider and calendars may each be nil
// when that source is disabled.
func NewCollector(provider Provider, calendars *CalendarScanner, urlBudget, maxQueries int) *Collector {
	return &Collector{
		provider:   provider,
		calendars:  calendars,
		urlBudget:  urlBudget,
		maxQueries: maxQueries,
	}
}

// Collect runs the queries in order and returns accepted results: no
// blocklisted domains, no duplicate normalized URLs, at most urlBudget
// entries. A zero deadline means no time limit.
func (c *Collector) Collect(ctx context.Context, queries []string, deadline time.Time) ([]Result, *CollectStats) {
	stats := &CollectStats{}
	seen := make(map[string]struct{})
	var accepted []Result

	accept := func(r Result) {
		if len(accepted) >= c.urlBudget {
			return
		}
		if isBlocked(r.URL) {
			return
		}
		key := normalizeURL(r.URL)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		if r.SourceDomain == "" {
			r.SourceDomain = domainOf(r.URL)
		}
		accepted = append(accepted, r)
	}

	if c.calendars != nil {
		for _, r := range c.calendars.ScanAll() {
			stats.ScannedURLs++
			accept(r)
		}
	}

	if c.provider != nil {
		for _, q := range queries {
			if len(accepted) >= c.urlBudget || stats.QueriesExecuted >= c.maxQueries {
				break
			}
			if expired(deadline) {
				log.Println("Search collection stopped: run deadline reached")
				break
			}

			results, err := c.provider.Search(ctx, q)
			stats.QueriesExecuted++
			if err != nil {
				log.Printf("Search failed for %q: %v", q, err)
				continue
			}

			for _, r := range results {
				stats.ScannedURLs++
				accept(r)
			}
		}
	}

	log.Printf("Collected %d candidate URLs (%d queries, %d scanned)",
		len(accepted), stats.QueriesExecuted, stats.ScannedURLs)
	return accepted, stats
}

// isBlocked reports whether the URL's host is a blocked domain or one of its
// subdomains.
func isBlocked(rawURL string) bool {
	host := domainOf(rawURL)
	if host == "" {
		return true
	}
	for _, blocked := range blockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// normalizeURL canonicalizes a URL for duplicate detection: lowercased
// scheme/host, fragment stripped, trailing slash trimmed.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}
