package search

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// stubProvider returns canned results per query, in order.
type stubProvider struct {
	results map[string][]Result
	err     error
	calls   int
}

func (s *stubProvider) Search(_ context.Context, query string) ([]Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results[query], nil
}

func TestCollectFiltersBlockedDomains(t *testing.T) {
	provider := &stubProvider{results: map[string][]Result{
		"q1": {
			{Title: "Demo", URL: "https://shop.example.com/demo-day"},
			{Title: "Social", URL: "https://www.facebook.com/events/123"},
			{Title: "Aggregator", URL: "https://www.eventbrite.com/e/456"},
			{Title: "Subdomain", URL: "https://events.meetup.com/ski-demo"},
		},
	}}

	c := NewCollector(provider, nil, 10, 5)
	accepted, stats := c.Collect(context.Background(), []string{"q1"}, time.Time{})

	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted, got %d", len(accepted))
	}
	if accepted[0].URL != "https://shop.example.com/demo-day" {
		t.Errorf("unexpected accepted URL %q", accepted[0].URL)
	}
	if stats.ScannedURLs != 4 {
		t.Errorf("expected 4 scanned, got %d", stats.ScannedURLs)
	}
}

func TestCollectDeduplicatesNormalizedURLs(t *testing.T) {
	provider := &stubProvider{results: map[string][]Result{
		"q1": {
			{Title: "A", URL: "https://example.com/page"},
			{Title: "B", URL: "https://EXAMPLE.com/page#section"},
			{Title: "C", URL: "https://example.com/page/"},
			{Title: "D", URL: "https://example.com/other"},
		},
	}}

	c := NewCollector(provider, nil, 10, 5)
	accepted, _ := c.Collect(context.Background(), []string{"q1"}, time.Time{})

	if len(accepted) != 2 {
		t.Errorf("expected 2 accepted after dedup, got %d: %v", len(accepted), accepted)
	}
}

func TestCollectRespectsURLBudget(t *testing.T) {
	results := make([]Result, 20)
	for i := range results {
		results[i] = Result{Title: "T", URL: fmt.Sprintf("https://site%d.com/demo", i)}
	}
	provider := &stubProvider{results: map[string][]Result{"q1": results}}

	c := NewCollector(provider, nil, 5, 5)
	accepted, _ := c.Collect(context.Background(), []string{"q1"}, time.Time{})

	if len(accepted) != 5 {
		t.Errorf("expected 5 accepted (budget), got %d", len(accepted))
	}
}

func TestCollectRespectsQueryBudget(t *testing.T) {
	provider := &stubProvider{results: map[string][]Result{}}
	c := NewCollector(provider, nil, 50, 3)

	queries := []string{"q1", "q2", "q3", "q4", "q5"}
	_, stats := c.Collect(context.Background(), queries, time.Time{})

	if stats.QueriesExecuted != 3 {
		t.Errorf("expected 3 queries executed, got %d", stats.QueriesExecuted)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 provider calls, got %d", provider.calls)
	}
}

func TestCollectProviderFailureIsNotFatal(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("rate limited")}
	c := NewCollector(provider, nil, 10, 5)

	accepted, stats := c.Collect(context.Background(), []string{"q1", "q2"}, time.Time{})

	if len(accepted) != 0 {
		t.Errorf("expected 0 accepted, got %d", len(accepted))
	}
	if stats.QueriesExecuted != 2 {
		t.Errorf("expected both queries attempted, got %d", stats.QueriesExecuted)
	}
}

func TestCollectStopsAtDeadline(t *testing.T) {
	provider := &stubProvider{results: map[string][]Result{}}
	c := NewCollector(provider, nil, 10, 10)

	deadline := time.Now().Add(-time.Second)
	_, stats := c.Collect(context.Background(), []string{"q1", "q2"}, deadline)

	if stats.QueriesExecuted != 0 {
		t.Errorf("expected 0 queries past deadline, got %d", stats.QueriesExecuted)
	}
}

func TestCollectNilProvider(t *testing.T) {
	c := NewCollector(nil, nil, 10, 5)
	accepted, stats := c.Collect(context.Background(), []string{"q1"}, time.Time{})
	if len(accepted) != 0 || stats.QueriesExecuted != 0 {
		t.Error("expected no activity with nil sources")
	}
}

func TestURLBudgetClamps(t *testing.T) {
	cases := []struct {
		cap  int
		want int
	}{
		{1, 10},
		{5, 15},
		{25, 60},
		{100, 60},
	}
	for _, tc := range cases {
		if got := URLBudget(tc.cap); got != tc.want {
			t.Errorf("URLBudget(%d) = %d, want %d", tc.cap, got, tc.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	a := normalizeURL("https://Example.com/Path/#frag")
	b := normalizeURL("https://example.com/Path/")
	if a != b {
		t.Errorf("expected %q == %q", a, b)
	}
	if normalizeURL("not a url") != "" {
		t.Error("expected empty string for invalid URL")
	}
}

func TestIsBlockedGovDomain(t *testing.T) {
	if !isBlocked("https://www.recreation.gov/articles/ski-season") {
		t.Error("expected recreation.gov blocked")
	}
	if isBlocked("https://skishop.example.com/events") {
		t.Error("expected retailer domain allowed")
	}
}
