package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Result is one candidate URL returned by a search source.
type Result struct {
	Title        string
	URL          string
	Snippet      string
	SourceDomain string
}

// Provider answers one search query with a ranked result list. A failed call
// is logged by the collector and treated as zero results.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// BraveClient queries the Brave web search API.
type BraveClient struct {
	endpoint string
	apiKey   string
	count    int
	client   *http.Client
}

// NewBraveClient creates a search client reading the API key from the given
// env var.
func NewBraveClient(endpoint, apiKeyEnv string, resultsPerQuery int) *BraveClient {
	if resultsPerQuery <= 0 {
		resultsPerQuery = 10
	}
	return &BraveClient{
		endpoint: endpoint,
		apiKey:   os.Getenv(apiKeyEnv),
		count:    resultsPerQuery,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// IsConfigured returns whether the API key is available.
func (c *BraveClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Search runs one query against the search API.
func (c *BraveClient) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{
		"q":     {query},
		"count": {fmt.Sprintf("%d", c.count)},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned %d", resp.StatusCode)
	}

	var body struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	var results []Result
	for _, r := range body.Web.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		results = append(results, Result{
			Title:        strings.TrimSpace(r.Title),
			URL:          r.URL,
			Snippet:      strings.TrimSpace(r.Description),
			SourceDomain: domainOf(r.URL),
		})
	}
	return results, nil
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
