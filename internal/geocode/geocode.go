// Package geocode resolves free-text locations to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64
	Lng float64
}

// Geocoder resolves a free-text location. A nil Point with nil error means
// the location could not be resolved; callers treat that as missing
// coordinates, never as a failure.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (*Point, error)
}

// NominatimClient geocodes against a Nominatim-compatible /search endpoint.
type NominatimClient struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

// NewNominatimClient creates a geocoding client.
func NewNominatimClient(endpoint, userAgent string) *NominatimClient {
	return &NominatimClient{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Geocode resolves a location string to its best-match coordinates.
func (c *NominatimClient) Geocode(ctx context.Context, location string) (*Point, error) {
	params := url.Values{
		"q":      {location},
		"format": {"json"},
		"limit":  {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding geocoder response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, nil
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, nil
	}
	return &Point{Lat: lat, Lng: lng}, nil
}

// Cache memoizes geocoding per run, keyed by the lowercased/trimmed location,
// so the same location string is never sent to the geocoder twice. Failures
// are memoized too.
type Cache struct {
	inner   Geocoder
	entries map[string]*Point
}

// NewCache wraps a geocoder with per-run memoization.
func NewCache(inner Geocoder) *Cache {
	return &Cache{inner: inner, entries: make(map[string]*Point)}
}

// Geocode resolves through the cache. Errors from the inner geocoder are
// converted to a memoized miss.
func (c *Cache) Geocode(ctx context.Context, location string) (*Point, error) {
	key := strings.ToLower(strings.TrimSpace(location))
	if key == "" {
		return nil, nil
	}

	if p, ok := c.entries[key]; ok {
		return p, nil
	}

	p, err := c.inner.Geocode(ctx, location)
	if err != nil {
		p = nil
	}
	c.entries[key] = p
	return p, nil
}
