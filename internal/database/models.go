package database

// Status is the review state of a candidate. Approved and rejected are
// terminal with respect to the discovery pipeline.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Candidate is a discovered demo event awaiting human review.
type Candidate struct {
	ID               int64
	IdentityHash     string
	Title            string
	Company          string
	Category         string
	EventDate        string // YYYY-MM-DD
	EventTime        *string
	Location         string
	Latitude         *float64
	Longitude        *float64
	Notes            *string
	SourceURLs       []string
	SourcePrimaryURL string
	SourceSnippet    *string
	RawPayload       string
	Status           Status
	SeenCount        int
	FirstSeenAt      string
	LastSeenAt       string
	AdminEdited      bool
	CreatedAt        *string
	UpdatedAt        *string
}

// CandidateContent carries the content fields refreshed on rediscovery of a
// still-pending, not-admin-edited candidate.
type CandidateContent struct {
	Title     string
	Company   string
	Category  string
	EventDate string
	EventTime *string
	Location  string
	Latitude  *float64
	Longitude *float64
	Notes     *string
}

// Bookkeeping carries the fields every rediscovery refreshes regardless of
// review state.
type Bookkeeping struct {
	SourceURLs    []string // unioned into the stored set
	SourceSnippet *string
	RawPayload    string
	SeenAt        string
}

// PublishedEvent is an event that graduated out of the review queue.
type PublishedEvent struct {
	ID           int64
	IdentityHash string
	Title        string
	Company      string
	Category     string
	EventDate    string
	Location     string
	PublishedAt  *string
}

// RunReport is the persisted audit record of one discovery run.
type RunReport struct {
	ID                     int64
	RunID                  string
	TriggerSource          string
	StartedAt              string
	FinishedAt             *string
	RuntimeLimited         bool
	QueriesExecuted        int
	ScannedURLs            int
	ScrapedPages           int
	ParsedPages            int
	UniqueEvents           int
	NewCandidates          int
	UpdatedPending         int
	SkippedApproved        int
	SkippedRejected        int
	SkippedMissingRequired int
	SkippedOutOfWindow     int
	TotalProcessed         int
}

// Stats contains aggregate store statistics.
type Stats struct {
	TotalCandidates    int
	PendingCandidates  int
	ApprovedCandidates int
	RejectedCandidates int
	PublishedEvents    int
	TotalRuns          int
}
