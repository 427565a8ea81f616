// Package source loads the local CIK database produced by the ticker
// refresh job. It is a pure reader: no network access, no retries, one
// precondition check before any scheduling begins.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/user/edgar-fetcher/internal/domain"
)

// ErrDataUnavailable marks a missing, malformed, or empty CIK database.
// It is fatal: the run aborts before any request is scheduled.
var ErrDataUnavailable = errors.New("cik database unavailable")

// cikWidth is the fixed width of a CIK as the submissions API expects it.
const cikWidth = 10

type database struct {
	Metadata struct {
		TotalCompanies int    `json:"total_companies"`
		LastUpdated    string `json:"last_updated"`
	} `json:"metadata"`
	Companies []domain.Company `json:"companies"`
}

// Source reads identifier records from a CIK database JSON file.
type Source struct {
	path string
}

func New(path string) *Source {
	return &Source{path: path}
}

// Load reads the database and returns one record per unique CIK, sorted
// by CIK. CIKs are zero-padded to their fixed width.
func (s *Source) Load() ([]domain.Company, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrDataUnavailable, s.path, err)
	}

	var db database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrDataUnavailable, s.path, err)
	}

	seen := make(map[string]domain.Company, len(db.Companies))
	for _, c := range db.Companies {
		cik := PadCIK(c.CIK)
		if cik == "" {
			continue
		}
		c.CIK = cik
		// First record wins; the database can list one CIK under
		// several tickers (share classes).
		if _, ok := seen[cik]; !ok {
			seen[cik] = c
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: %s contains no usable records", ErrDataUnavailable, s.path)
	}

	companies := make([]domain.Company, 0, len(seen))
	for _, c := range seen {
		companies = append(companies, c)
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].CIK < companies[j].CIK })
	return companies, nil
}

// Lookup returns the record for a single CIK, or a bare record if the
// database does not know it. Used by single-identifier mode to enrich
// the report with ticker and name.
func (s *Source) Lookup(cik string) domain.Company {
	cik = PadCIK(cik)
	companies, err := s.Load()
	if err != nil {
		return domain.Company{CIK: cik}
	}
	for _, c := range companies {
		if c.CIK == cik {
			return c
		}
	}
	return domain.Company{CIK: cik}
}

// PadCIK left-pads a CIK with zeros to the fixed width the submissions
// API uses. Returns "" for input that is not a plain number.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if cik == "" || len(cik) > cikWidth {
		return ""
	}
	for _, r := range cik {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return strings.Repeat("0", cikWidth-len(cik)) + cik
}
