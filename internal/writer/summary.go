package writer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/user/edgar-fetcher/internal/domain"
)

// recentFilingsKept caps how many filing-history rows are copied into
// the summary; the full history stays in the raw payload.
const recentFilingsKept = 20

// submissionsDoc is the subset of the SEC submissions document the
// summary needs. The API pads filing history as parallel arrays.
type submissionsDoc struct {
	Name                 string   `json:"name"`
	EntityType           string   `json:"entityType"`
	SIC                  string   `json:"sic"`
	SICDescription       string   `json:"sicDescription"`
	StateOfIncorporation string   `json:"stateOfIncorporation"`
	FiscalYearEnd        string   `json:"fiscalYearEnd"`
	EIN                  string   `json:"ein"`
	Tickers              []string `json:"tickers"`
	Exchanges            []string `json:"exchanges"`
	FormerNames          []struct {
		Name string `json:"name"`
	} `json:"formerNames"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
		} `json:"recent"`
	} `json:"filings"`
}

// ExtractSummary derives the key-fields artifact from a raw
// submissions payload.
func ExtractSummary(cik string, payload []byte, downloadedAt time.Time) (domain.SubmissionsSummary, error) {
	var doc submissionsDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.SubmissionsSummary{}, fmt.Errorf("decode submissions document: %w", err)
	}

	recent := doc.Filings.Recent
	count := len(recent.AccessionNumber)

	kept := count
	if kept > recentFilingsKept {
		kept = recentFilingsKept
	}
	filings := make([]domain.FilingEntry, 0, kept)
	for i := 0; i < kept; i++ {
		entry := domain.FilingEntry{AccessionNumber: recent.AccessionNumber[i]}
		if i < len(recent.Form) {
			entry.Form = recent.Form[i]
		}
		if i < len(recent.FilingDate) {
			entry.FilingDate = recent.FilingDate[i]
		}
		filings = append(filings, entry)
	}

	former := make([]string, 0, len(doc.FormerNames))
	for _, f := range doc.FormerNames {
		if f.Name != "" {
			former = append(former, f.Name)
		}
	}

	return domain.SubmissionsSummary{
		CIK:                  cik,
		Name:                 doc.Name,
		EntityType:           doc.EntityType,
		SIC:                  doc.SIC,
		SICDescription:       doc.SICDescription,
		StateOfIncorporation: doc.StateOfIncorporation,
		FiscalYearEnd:        doc.FiscalYearEnd,
		EIN:                  doc.EIN,
		Tickers:              doc.Tickers,
		Exchanges:            doc.Exchanges,
		FormerNames:          former,
		FilingsCount:         count,
		RecentFilings:        filings,
		DownloadedAt:         downloadedAt,
	}, nil
}
