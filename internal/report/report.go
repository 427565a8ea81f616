// Package report turns a run manifest into its summary: a
// machine-readable record and a human-readable Markdown rendering.
// Build is a pure function of the manifest, so it can run mid-run
// against a snapshot as well as at completion.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/user/edgar-fetcher/internal/domain"
)

// Failure is one terminally failed CIK with its recorded reason.
type Failure struct {
	CIK      string `json:"cik"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// Summary aggregates a manifest. Remaining is how many identifiers
// have no terminal outcome yet; zero for a completed run.
type Summary struct {
	RunDate    string     `json:"run_date"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Remaining  int        `json:"remaining"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   string     `json:"duration"`
	Failures   []Failure  `json:"failures,omitempty"`
}

// Build computes the summary for a manifest snapshot.
func Build(m domain.Manifest) Summary {
	s := Summary{
		RunDate:    m.RunDate,
		Total:      m.Total,
		Succeeded:  len(m.Completed),
		Failed:     len(m.Failed),
		Skipped:    m.Skipped,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}

	s.Remaining = m.Total - s.Succeeded - s.Failed
	if s.Remaining < 0 {
		s.Remaining = 0
	}

	end := time.Now().UTC()
	if m.FinishedAt != nil {
		end = *m.FinishedAt
	}
	s.Duration = end.Sub(m.StartedAt).Round(time.Millisecond).String()

	for cik, entry := range m.Failed {
		s.Failures = append(s.Failures, Failure{
			CIK:      cik,
			Reason:   entry.Reason,
			Attempts: entry.Attempts,
		})
	}
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].CIK < s.Failures[j].CIK })
	return s
}

// RenderMarkdown produces the per-run status report, mirroring the
// layout downstream tooling expects.
func RenderMarkdown(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# SEC Submissions Download Report - %s\n\n", s.RunDate)
	b.WriteString("## Summary Statistics\n\n")
	fmt.Fprintf(&b, "- **Total Identifiers**: %d\n", s.Total)
	fmt.Fprintf(&b, "- **Successfully Downloaded**: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "- **Failed Downloads**: %d\n", s.Failed)
	fmt.Fprintf(&b, "- **Skipped (already done)**: %d\n", s.Skipped)
	fmt.Fprintf(&b, "- **Remaining**: %d\n", s.Remaining)
	fmt.Fprintf(&b, "- **Duration**: %s\n", s.Duration)
	if s.Total > 0 {
		rate := float64(s.Succeeded) / float64(s.Total) * 100
		fmt.Fprintf(&b, "- **Completion Rate**: %.2f%%\n", rate)
	}
	b.WriteString("\n")

	if len(s.Failures) > 0 {
		b.WriteString("## Failed Downloads\n\n")
		b.WriteString("| CIK | Reason | Attempts |\n")
		b.WriteString("|-----|--------|----------|\n")
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", f.CIK, f.Reason, f.Attempts)
		}
	}
	return b.String()
}
