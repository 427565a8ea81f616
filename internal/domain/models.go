package domain

import "time"

// Company is one row of the CIK database: a stable 10-digit zero-padded
// CIK plus the ticker and display name the upstream refresh job recorded
// for it. Tickers can be empty for registrants that are not listed.
type Company struct {
	CIK    string `json:"cik"`
	Ticker string `json:"ticker"`
	Name   string `json:"company_name"`
}

// Status is the terminal state recorded for a CIK within one run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Failure reasons that are produced by the pool itself rather than
// derived from an HTTP status.
const (
	ReasonAttemptsExhausted = "attempts-exhausted"
	ReasonDuplicateArtifact = "duplicate-artifact"
)

// Outcome is the result of processing one CIK to a terminal state.
type Outcome struct {
	CIK       string
	Status    Status
	Reason    string
	Attempts  int
	FetchedAt time.Time
	FilePath  string
	Company   string
}

// CompletedEntry records a successful fetch in the run manifest.
type CompletedEntry struct {
	FetchedAt time.Time `json:"fetched_at"`
	Attempts  int       `json:"attempts"`
	Company   string    `json:"company,omitempty"`
}

// FailedEntry records a terminal failure in the run manifest.
type FailedEntry struct {
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// Manifest is the durable per-run record of which CIKs have reached a
// terminal outcome. It is rewritten atomically after every recorded
// outcome, so an interrupted run resumes from exactly this state.
type Manifest struct {
	RunDate    string                    `json:"run_date"`
	Total      int                       `json:"total"`
	Skipped    int                       `json:"skipped"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
	Completed  map[string]CompletedEntry `json:"completed"`
	Failed     map[string]FailedEntry    `json:"failed"`
}

// FilingEntry is one row of the filing history carried into the
// per-CIK summary artifact.
type FilingEntry struct {
	AccessionNumber string `json:"accession_number"`
	Form            string `json:"form"`
	FilingDate      string `json:"filing_date"`
}

// SubmissionsSummary is the extracted-fields artifact written next to
// the raw submissions payload. Field names follow the upstream
// submissions document.
type SubmissionsSummary struct {
	CIK                  string        `json:"cik"`
	Name                 string        `json:"name"`
	EntityType           string        `json:"entityType"`
	SIC                  string        `json:"sic"`
	SICDescription       string        `json:"sicDescription"`
	StateOfIncorporation string        `json:"stateOfIncorporation"`
	FiscalYearEnd        string        `json:"fiscalYearEnd"`
	EIN                  string        `json:"ein"`
	Tickers              []string      `json:"tickers"`
	Exchanges            []string      `json:"exchanges"`
	FormerNames          []string      `json:"formerNames"`
	FilingsCount         int           `json:"filings_count"`
	RecentFilings        []FilingEntry `json:"recent_filings"`
	DownloadedAt         time.Time     `json:"download_timestamp"`
}
