// Package discovery orchestrates one end-to-end discovery run: query
// building, web search, page fetching, model extraction, normalization, and
// reconciliation into the review queue. Runs are auditable; every run
// persists a report row whether it succeeds or not.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/peakgear/gearscout/internal/config"
	"github.com/peakgear/gearscout/internal/database"
	"github.com/peakgear/gearscout/internal/extract"
	"github.com/peakgear/gearscout/internal/fetch"
	"github.com/peakgear/gearscout/internal/geocode"
	"github.com/peakgear/gearscout/internal/llm"
	"github.com/peakgear/gearscout/internal/normalize"
	"github.com/peakgear/gearscout/internal/query"
	"github.com/peakgear/gearscout/internal/reconcile"
	"github.com/peakgear/gearscout/internal/search"
)

var (
	// ErrUnauthorized means the request credential did not match the
	// configured token for its trigger source.
	ErrUnauthorized = errors.New("unauthorized discovery request")
	// ErrDisabled means discovery is switched off in config.
	ErrDisabled = errors.New("discovery is disabled")
	// ErrNotConfigured means a required external service credential is
	// missing. Checked before any external call is made.
	ErrNotConfigured = errors.New("discovery is not configured")
)

// Trigger sources accepted by Run.
const (
	SourceManual    = "manual"
	SourceScheduled = "scheduled"
)

// Request describes who asked for a run and with what credential.
type Request struct {
	Source     string
	Credential string
}

// Report is the outcome of one discovery run, serialized on the API surface.
type Report struct {
	Success                bool   `json:"success"`
	RunID                  string `json:"runId"`
	TriggerSource          string `json:"triggerSource"`
	RuntimeLimited         bool   `json:"runtimeLimited"`
	QueriesExecuted        int    `json:"queriesExecuted"`
	ScannedURLs            int    `json:"scannedUrls"`
	ScrapedPages           int    `json:"scrapedPages"`
	ParsedPages            int    `json:"parsedPages"`
	UniqueEvents           int    `json:"uniqueEventsConsidered"`
	NewCandidates          int    `json:"newCandidates"`
	UpdatedPending         int    `json:"updatedPending"`
	SkippedApproved        int    `json:"skippedApproved"`
	SkippedRejected        int    `json:"skippedRejected"`
	SkippedMissingRequired int    `json:"skippedMissingRequired"`
	SkippedOutOfWindow     int    `json:"skippedOutOfWindow"`
	ProcessedEvents        int    `json:"processedEvents"`
}

// Agent runs the discovery pipeline against a candidate store.
type Agent struct {
	cfg       *config.Config
	db        *database.DB
	searcher  search.Provider
	calendars *search.CalendarScanner
	fetcher   *fetch.Fetcher
	provider  llm.Provider
	geocoder  geocode.Geocoder
	now       func() time.Time
}

// NewAgent wires an agent from config. The search provider, extraction model,
// and geocoder come from the configured endpoints.
func NewAgent(cfg *config.Config, db *database.DB) *Agent {
	a := &Agent{
		cfg:       cfg,
		db:        db,
		calendars: search.NewCalendarScanner(cfg.Sources.Calendars),
		fetcher:   fetch.NewFetcher(cfg.Discovery.FetchConcurrency, 20*time.Second),
		provider: llm.CreateProvider(
			cfg.Extraction.Provider,
			cfg.Extraction.Model,
			cfg.Extraction.OllamaURL,
			cfg.Extraction.OpenAIModel,
			cfg.Extraction.APIKeyEnv,
		),
		now: time.Now,
	}
	if cfg.Sources.Search.Enabled {
		a.searcher = search.NewBraveClient(
			cfg.Sources.Search.Endpoint,
			cfg.Sources.Search.APIKeyEnv,
			cfg.Sources.Search.ResultsPerQuery,
		)
	}
	if cfg.Geocoding.Enabled {
		a.geocoder = geocode.NewNominatimClient(cfg.Geocoding.Endpoint, cfg.Geocoding.UserAgent)
	}
	return a
}

// Run executes one discovery run. The returned report is non-nil whenever the
// run started, including runs that failed partway through.
func (a *Agent) Run(ctx context.Context, req Request) (*Report, error) {
	if err := a.authorize(req); err != nil {
		return nil, err
	}
	if !a.cfg.Discovery.Enabled {
		return nil, ErrDisabled
	}
	if a.provider == nil || !a.provider.IsConfigured() {
		return nil, fmt.Errorf("%w: extraction provider unavailable", ErrNotConfigured)
	}
	if c, ok := a.searcher.(interface{ IsConfigured() bool }); ok && !c.IsConfigured() {
		return nil, fmt.Errorf("%w: search API key missing", ErrNotConfigured)
	}

	d := a.cfg.Discovery
	started := a.now()
	var deadline time.Time
	if d.DeadlineSeconds > 0 {
		deadline = started.Add(time.Duration(d.DeadlineSeconds) * time.Second)
	}

	report := &Report{
		RunID:         uuid.NewString(),
		TriggerSource: req.Source,
	}
	log.Printf("Starting discovery run %s (trigger: %s, scope: %s)", report.RunID, req.Source, d.Scope)

	queries := query.Build(extract.Categories, d.Scope, started)

	collector := search.NewCollector(a.searcher, a.calendars, search.URLBudget(d.CandidateCap), d.MaxQueryAttempts)
	results, cstats := collector.Collect(ctx, queries, deadline)
	report.QueriesExecuted = cstats.QueriesExecuted
	report.ScannedURLs = cstats.ScannedURLs

	pages := a.fetcher.FetchAll(results, deadline)
	if limit := pageCap(d.CandidateCap, d.HardPageCap); limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	report.ScrapedPages = len(pages)

	extractor := extract.NewExtractor(a.provider, d.ExtractConcurrency, a.cfg.Extraction.MaxTokens)
	extracted := extractor.ExtractAll(ctx, pages, started, deadline)
	report.ParsedPages = extracted.ParsedPages

	// The geocode cache is per-run so repeated location strings cost one
	// upstream call each while stale answers never outlive the run.
	var geocoder geocode.Geocoder
	if a.geocoder != nil {
		geocoder = geocode.NewCache(a.geocoder)
	}
	normalizer := normalize.New(geocoder, d.WindowMonths, started)
	events, nstats := normalizer.NormalizeAll(ctx, extracted.PageEvents, d.CandidateCap, deadline)
	report.UniqueEvents = len(events)
	report.SkippedMissingRequired = nstats.MissingRequired
	report.SkippedOutOfWindow = nstats.OutOfWindow

	rstats, rerr := reconcile.New(a.db).ReconcileAll(events, a.now(), deadline)
	report.NewCandidates = rstats.NewCandidates
	report.UpdatedPending = rstats.UpdatedPending
	report.SkippedApproved = rstats.SkippedApproved
	report.SkippedRejected = rstats.SkippedRejected
	report.ProcessedEvents = rstats.TotalProcessed

	report.Success = rerr == nil
	report.RuntimeLimited = !deadline.IsZero() && a.now().After(deadline)

	if err := a.persistReport(report, started); err != nil {
		log.Printf("Failed to persist run report %s: %v", report.RunID, err)
		if rerr == nil {
			return report, fmt.Errorf("persisting run report: %w", err)
		}
	}
	if rerr != nil {
		return report, fmt.Errorf("run %s: %w", report.RunID, rerr)
	}

	log.Printf("Discovery run %s finished: %d new, %d updated, %d unique events",
		report.RunID, report.NewCandidates, report.UpdatedPending, report.UniqueEvents)
	return report, nil
}

// pageCap bounds how many pages reach extraction: one page per wanted
// candidate at most, never more than the hard cap. Zero means unbounded.
func pageCap(candidateCap, hardCap int) int {
	limit := candidateCap
	if limit <= 0 || (hardCap > 0 && hardCap < limit) {
		limit = hardCap
	}
	return limit
}

func (a *Agent) authorize(req Request) error {
	var want string
	switch req.Source {
	case SourceManual:
		want = a.cfg.AdminToken()
	case SourceScheduled:
		want = a.cfg.ScheduleSecret()
	default:
		return fmt.Errorf("%w: unknown trigger source %q", ErrUnauthorized, req.Source)
	}
	if want == "" || req.Credential != want {
		return ErrUnauthorized
	}
	return nil
}

func (a *Agent) persistReport(r *Report, started time.Time) error {
	finished := a.now().UTC().Format("2006-01-02 15:04:05")
	_, err := a.db.InsertRunReport(&database.RunReport{
		RunID:                  r.RunID,
		TriggerSource:          r.TriggerSource,
		StartedAt:              started.UTC().Format("2006-01-02 15:04:05"),
		FinishedAt:             &finished,
		RuntimeLimited:         r.RuntimeLimited,
		QueriesExecuted:        r.QueriesExecuted,
		ScannedURLs:            r.ScannedURLs,
		ScrapedPages:           r.ScrapedPages,
		ParsedPages:            r.ParsedPages,
		UniqueEvents:           r.UniqueEvents,
		NewCandidates:          r.NewCandidates,
		UpdatedPending:         r.UpdatedPending,
		SkippedApproved:        r.SkippedApproved,
		SkippedRejected:        r.SkippedRejected,
		SkippedMissingRequired: r.SkippedMissingRequired,
		SkippedOutOfWindow:     r.SkippedOutOfWindow,
		TotalProcessed:         r.ProcessedEvents,
	})
	return err
}
