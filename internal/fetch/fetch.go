// Package fetch retrieves page text for candidate URLs under a bounded
// worker pool.
package fetch

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/peakgear/gearscout/internal/search"
)

const (
	maxBodyBytes   = 2 << 20 // response-size cap per page
	minTextLength  = 100
	defaultTimeout = 15 * time.Second
)

// Page is the fetched content of one candidate URL.
type Page struct {
	URL         string
	Title       string
	Snippet     string
	TextContent string
}

// Fetcher fetches page text via HTTP + readability extraction.
type Fetcher struct {
	client      *http.Client
	concurrency int
}

// NewFetcher creates a fetcher with the given worker count and per-request
// timeout.
func NewFetcher(concurrency int, timeout time.Duration) *Fetcher {
	if concurrency <= 0 {
		concurrency = 5
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		concurrency: concurrency,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchAll fetches every URL with at most `concurrency` requests in flight.
// A fixed set of workers pulls from a shared cursor, so one slow page delays
// only its own slot. Failed or empty pages are dropped; output order is not
// guaranteed to match input order. A zero deadline means no time limit.
func (f *Fetcher) FetchAll(results []search.Result, deadline time.Time) []Page {
	if len(results) == 0 {
		return nil
	}

	pages := make([]*Page, len(results))
	var cursor atomic.Int64

	var g errgroup.Group
	workers := f.concurrency
	if workers > len(results) {
		workers = len(results)
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(results) {
					return nil
				}
				if expired(deadline) {
					return nil
				}

				r := results[i]
				text, err := f.fetchPageText(r.URL)
				if err != nil || text == "" {
					log.Printf("No usable content from %s", r.URL)
					continue
				}
				pages[i] = &Page{
					URL:         r.URL,
					Title:       r.Title,
					Snippet:     r.Snippet,
					TextContent: text,
				}
			}
		})
	}
	g.Wait()

	fetched := make([]Page, 0, len(results))
	for _, p := range pages {
		if p != nil {
			fetched = append(fetched, *p)
		}
	}

	log.Printf("Fetched %d/%d pages", len(fetched), len(results))
	return fetched
}

func (f *Fetcher) fetchPageText(pageURL string) (string, error) {
	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "gearscout/1.0 (demo event discovery)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// 401/403 handled the same as 404: the page is unusable for this run.
	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) >= minTextLength {
		return text, nil
	}
	return "", nil
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
