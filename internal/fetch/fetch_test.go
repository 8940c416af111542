package fetch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peakgear/gearscout/internal/search"
)

func pageHTML(body string) string {
	return fmt.Sprintf(`<html><head><title>Demo</title></head><body><article><p>%s</p></article></body></html>`,
		strings.Repeat(body+" ", 30))
}

func TestFetchAllSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("Acme ski demo day at Copper Mountain this March."))
	}))
	defer srv.Close()

	f := NewFetcher(2, 5*time.Second)
	pages := f.FetchAll([]search.Result{
		{Title: "Demo Day", URL: srv.URL + "/a", Snippet: "snippet"},
		{Title: "Demo Day 2", URL: srv.URL + "/b"},
	}, time.Time{})

	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if !strings.Contains(pages[0].TextContent, "ski demo day") {
		t.Errorf("expected extracted text, got %q", pages[0].TextContent[:50])
	}
	if pages[0].Title != "Demo Day" && pages[1].Title != "Demo Day" {
		t.Error("expected search result title carried onto page")
	}
}

func TestFetchAllDropsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, pageHTML("Snowboard demo event details for the coming season."))
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/empty":
			fmt.Fprint(w, "<html><body></body></html>")
		}
	}))
	defer srv.Close()

	f := NewFetcher(4, 5*time.Second)
	pages := f.FetchAll([]search.Result{
		{Title: "OK", URL: srv.URL + "/ok"},
		{Title: "Forbidden", URL: srv.URL + "/forbidden"},
		{Title: "Missing", URL: srv.URL + "/missing"},
		{Title: "Empty", URL: srv.URL + "/empty"},
		{Title: "Unreachable", URL: "http://127.0.0.1:1/nope"},
	}, time.Time{})

	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].URL != srv.URL+"/ok" {
		t.Errorf("unexpected page %q", pages[0].URL)
	}
}

func TestFetchAllConcurrencyCap(t *testing.T) {
	var inFlight, peak int32
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, pageHTML("Bike demo content for concurrency testing purposes."))
	}))
	defer srv.Close()

	var results []search.Result
	for i := 0; i < 10; i++ {
		results = append(results, search.Result{Title: "T", URL: fmt.Sprintf("%s/p%d", srv.URL, i)})
	}

	f := NewFetcher(3, 5*time.Second)
	pages := f.FetchAll(results, time.Time{})

	if len(pages) != 10 {
		t.Fatalf("expected 10 pages, got %d", len(pages))
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Errorf("expected at most 3 in-flight fetches, saw %d", peak)
	}
}

func TestFetchAllStopsAtDeadline(t *testing.T) {
	var served int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&served, 1)
		fmt.Fprint(w, pageHTML("Content served before the deadline cut things off."))
	}))
	defer srv.Close()

	var results []search.Result
	for i := 0; i < 8; i++ {
		results = append(results, search.Result{Title: "T", URL: fmt.Sprintf("%s/p%d", srv.URL, i)})
	}

	f := NewFetcher(2, 5*time.Second)
	pages := f.FetchAll(results, time.Now().Add(-time.Second))

	if len(pages) != 0 {
		t.Errorf("expected 0 pages past deadline, got %d", len(pages))
	}
}

func TestFetchAllEmptyInput(t *testing.T) {
	f := NewFetcher(2, time.Second)
	if pages := f.FetchAll(nil, time.Time{}); pages != nil {
		t.Errorf("expected nil for empty input, got %v", pages)
	}
}
