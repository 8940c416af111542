package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/peakgear/gearscout/internal/config"
	"github.com/peakgear/gearscout/internal/database"
	"github.com/peakgear/gearscout/internal/discovery"
	"github.com/peakgear/gearscout/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "gearscout",
	Short:   "Gear demo event discovery",
	Long:    "GearScout discovers upcoming gear demo events from the web and keeps a review queue of candidates for the rental marketplace calendar.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(runsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gearscout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/gearscout/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure search, extraction, and the discovery schedule.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Candidates:")
		fmt.Printf("  Total: %d\n", stats.TotalCandidates)
		fmt.Printf("  Pending: %d\n", stats.PendingCandidates)
		fmt.Printf("  Approved: %d\n", stats.ApprovedCandidates)
		fmt.Printf("  Rejected: %d\n", stats.RejectedCandidates)
		fmt.Println("\nPublished events:", stats.PublishedEvents)
		fmt.Println("Discovery runs:", stats.TotalRuns)

		if last, _ := db.GetLastRun(); last != nil {
			fmt.Printf("\nLast run: %s (%s)\n", last.StartedAt, last.TriggerSource)
			fmt.Printf("  New: %d, updated: %d, scanned URLs: %d\n",
				last.NewCandidates, last.UpdatedPending, last.ScannedURLs)
			if last.RuntimeLimited {
				fmt.Println("  Run hit the time limit before finishing all queries.")
			}
		}
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run discovery: search -> fetch -> extract -> normalize -> reconcile",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		agent := discovery.NewAgent(cfg, db)
		report, err := agent.Run(context.Background(), discovery.Request{
			Source:     discovery.SourceManual,
			Credential: cfg.AdminToken(),
		})
		if err != nil {
			return err
		}

		fmt.Println("Discovery complete:")
		fmt.Printf("  Queries executed: %d\n", report.QueriesExecuted)
		fmt.Printf("  URLs scanned: %d\n", report.ScannedURLs)
		fmt.Printf("  Pages scraped: %d (parsed: %d)\n", report.ScrapedPages, report.ParsedPages)
		fmt.Printf("  Unique events: %d\n", report.UniqueEvents)
		fmt.Printf("  New candidates: %d\n", report.NewCandidates)
		fmt.Printf("  Updated pending: %d\n", report.UpdatedPending)
		fmt.Printf("  Skipped (approved/published): %d, (rejected): %d\n",
			report.SkippedApproved, report.SkippedRejected)
		fmt.Printf("  Dropped (missing fields): %d, (out of window): %d\n",
			report.SkippedMissingRequired, report.SkippedOutOfWindow)
		if report.RuntimeLimited {
			fmt.Println("  Run hit the time limit; remaining queries were skipped.")
		}
		fmt.Println("\nRun 'gearscout candidates list' to review the queue.")
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review dashboard and discovery API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		agent := discovery.NewAgent(cfg, db)
		srv, err := server.New(db, agent)
		if err != nil {
			return err
		}

		if schedule := cfg.Discovery.Schedule; schedule != "" {
			c := cron.New()
			_, err := c.AddFunc(schedule, func() {
				report, err := srv.TriggerScheduled(context.Background(), cfg.ScheduleSecret())
				if err != nil {
					log.Printf("Scheduled discovery run failed: %v", err)
					return
				}
				log.Printf("Scheduled run %s: %d new, %d updated", report.RunID, report.NewCandidates, report.UpdatedPending)
			})
			if err != nil {
				return fmt.Errorf("invalid discovery schedule %q: %w", schedule, err)
			}
			c.Start()
			defer c.Stop()
			fmt.Printf("Discovery scheduled: %s\n", schedule)
		}

		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Serve(servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- candidates command ---

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Review discovered demo event candidates",
}

var candidatesStatus string

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates in the review queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var status *database.Status
		if candidatesStatus != "" {
			st := database.Status(candidatesStatus)
			status = &st
		}

		candidates, err := db.ListCandidates(status)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Println("No candidates. Run 'gearscout run' to discover events.")
			return nil
		}

		for _, c := range candidates {
			when := c.EventDate
			if c.EventTime != nil {
				when += " " + *c.EventTime
			}
			fmt.Printf("[%d] %-9s %s  %s — %s (%s, %s)\n",
				c.ID, c.Status, when, c.Title, c.Company, c.Category, c.Location)
		}
		return nil
	},
}

var candidatesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a candidate in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := getCandidateArg(db, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("[%d] %s\n", c.ID, c.Title)
		fmt.Printf("  Status: %s", c.Status)
		if c.AdminEdited {
			fmt.Print(" (edited)")
		}
		fmt.Println()
		fmt.Printf("  Company: %s\n", c.Company)
		fmt.Printf("  Category: %s\n", c.Category)
		fmt.Printf("  Date: %s", c.EventDate)
		if c.EventTime != nil {
			fmt.Printf(" at %s", *c.EventTime)
		}
		fmt.Println()
		fmt.Printf("  Location: %s\n", c.Location)
		if c.Latitude != nil && c.Longitude != nil {
			fmt.Printf("  Coordinates: %.5f, %.5f\n", *c.Latitude, *c.Longitude)
		}
		if c.Notes != nil {
			fmt.Printf("  Notes: %s\n", *c.Notes)
		}
		fmt.Printf("  Seen: %d time(s), first %s, last %s\n", c.SeenCount, c.FirstSeenAt, c.LastSeenAt)
		fmt.Printf("  Identity: %s\n", c.IdentityHash)
		fmt.Println("  Sources:")
		for _, u := range c.SourceURLs {
			fmt.Printf("    %s\n", u)
		}
		return nil
	},
}

var candidatesApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setStatus(args[0], database.StatusApproved) },
}

var candidatesRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setStatus(args[0], database.StatusRejected) },
}

func setStatus(arg string, status database.Status) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := getCandidateArg(db, arg)
	if err != nil {
		return err
	}
	if err := db.SetCandidateStatus(c.ID, status); err != nil {
		return err
	}
	fmt.Printf("[%d] %s: %s\n", c.ID, c.Title, status)
	return nil
}

var (
	editTitle    string
	editCompany  string
	editCategory string
	editDate     string
	editTime     string
	editLocation string
	editNotes    string
)

var candidatesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit candidate content; edited fields survive rediscovery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := getCandidateArg(db, args[0])
		if err != nil {
			return err
		}

		content := &database.CandidateContent{
			Title:     c.Title,
			Company:   c.Company,
			Category:  c.Category,
			EventDate: c.EventDate,
			EventTime: c.EventTime,
			Location:  c.Location,
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			Notes:     c.Notes,
		}
		if cmd.Flags().Changed("title") {
			content.Title = editTitle
		}
		if cmd.Flags().Changed("company") {
			content.Company = editCompany
		}
		if cmd.Flags().Changed("category") {
			content.Category = editCategory
		}
		if cmd.Flags().Changed("date") {
			content.EventDate = editDate
		}
		if cmd.Flags().Changed("time") {
			content.EventTime = &editTime
		}
		if cmd.Flags().Changed("location") {
			content.Location = editLocation
		}
		if cmd.Flags().Changed("notes") {
			content.Notes = &editNotes
		}

		if err := db.EditCandidateContent(c.ID, content); err != nil {
			return err
		}
		fmt.Printf("[%d] %s: updated\n", c.ID, content.Title)
		return nil
	},
}

var candidatesPublishCmd = &cobra.Command{
	Use:   "publish <id>",
	Short: "Publish an approved candidate to the live calendar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := getCandidateArg(db, args[0])
		if err != nil {
			return err
		}
		if c.Status != database.StatusApproved {
			return fmt.Errorf("candidate %d is %s; approve it before publishing", c.ID, c.Status)
		}

		if _, err := db.InsertPublishedEvent(&database.PublishedEvent{
			IdentityHash: c.IdentityHash,
			Title:        c.Title,
			Company:      c.Company,
			Category:     c.Category,
			EventDate:    c.EventDate,
			Location:     c.Location,
		}); err != nil {
			return fmt.Errorf("publishing: %w", err)
		}
		fmt.Printf("[%d] %s: published\n", c.ID, c.Title)
		return nil
	},
}

func init() {
	candidatesListCmd.Flags().StringVar(&candidatesStatus, "status", "", "Filter by status (pending, approved, rejected)")

	candidatesEditCmd.Flags().StringVar(&editTitle, "title", "", "Event title")
	candidatesEditCmd.Flags().StringVar(&editCompany, "company", "", "Hosting company or brand")
	candidatesEditCmd.Flags().StringVar(&editCategory, "category", "", "Gear category")
	candidatesEditCmd.Flags().StringVar(&editDate, "date", "", "Event date (YYYY-MM-DD)")
	candidatesEditCmd.Flags().StringVar(&editTime, "time", "", "Event time (HH:MM:SS)")
	candidatesEditCmd.Flags().StringVar(&editLocation, "location", "", "Event location")
	candidatesEditCmd.Flags().StringVar(&editNotes, "notes", "", "Notes shown to reviewers")

	candidatesCmd.AddCommand(candidatesListCmd)
	candidatesCmd.AddCommand(candidatesShowCmd)
	candidatesCmd.AddCommand(candidatesApproveCmd)
	candidatesCmd.AddCommand(candidatesRejectCmd)
	candidatesCmd.AddCommand(candidatesEditCmd)
	candidatesCmd.AddCommand(candidatesPublishCmd)
}

// --- runs command ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent discovery runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No discovery runs recorded yet.")
			return nil
		}

		for _, r := range runs {
			limited := ""
			if r.RuntimeLimited {
				limited = " [time-limited]"
			}
			fmt.Printf("%s  %-9s new=%d updated=%d scanned=%d unique=%d%s\n",
				r.StartedAt, r.TriggerSource, r.NewCandidates, r.UpdatedPending,
				r.ScannedURLs, r.UniqueEvents, limited)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
}

func getCandidateArg(db *database.DB, arg string) (*database.Candidate, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid candidate ID %q", arg)
	}
	c, err := db.GetCandidateByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("candidate %d not found", id)
	}
	return c, nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "gearscout.db")
	return database.Open(dbPath)
}
