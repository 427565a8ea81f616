package writer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/domain"
	"github.com/user/edgar-fetcher/internal/fsutil"
)

const (
	testCIK = "0000320193"
	runA    = "20250824"
	runB    = "20250825"
)

const samplePayload = `{
	"name": "Apple Inc.",
	"entityType": "operating",
	"sic": "3571",
	"sicDescription": "Electronic Computers",
	"stateOfIncorporation": "CA",
	"fiscalYearEnd": "0927",
	"ein": "942404110",
	"tickers": ["AAPL"],
	"exchanges": ["Nasdaq"],
	"formerNames": [{"name": "Apple Computer Inc"}],
	"filings": {
		"recent": {
			"accessionNumber": ["0000320193-25-000001", "0000320193-25-000002"],
			"form": ["10-K", "8-K"],
			"filingDate": ["2025-01-15", "2025-02-01"]
		}
	}
}`

func TestWriteCreatesArtifacts(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, runA, zap.NewNop())

	summary, err := w.Write(testCIK, []byte(samplePayload))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw, err := os.ReadFile(w.ArtifactPath(testCIK))
	if err != nil {
		t.Fatalf("raw artifact missing: %v", err)
	}
	if string(raw) != samplePayload {
		t.Error("raw artifact does not match payload")
	}

	var onDisk domain.SubmissionsSummary
	summaryPath := filepath.Join(dir, runA, "CIK", testCIK, "summary.json")
	if err := fsutil.ReadJSON(summaryPath, &onDisk); err != nil {
		t.Fatalf("summary artifact missing: %v", err)
	}
	if onDisk.Name != "Apple Inc." || onDisk.Name != summary.Name {
		t.Errorf("summary name = %q, want Apple Inc.", onDisk.Name)
	}
	if onDisk.FilingsCount != 2 {
		t.Errorf("filings_count = %d, want 2", onDisk.FilingsCount)
	}
}

func TestWriteRejectsDuplicateWithinRun(t *testing.T) {
	w := New(t.TempDir(), runA, zap.NewNop())

	if _, err := w.Write(testCIK, []byte(samplePayload)); err != nil {
		t.Fatal(err)
	}
	_, err := w.Write(testCIK, []byte(samplePayload))
	if !errors.Is(err, ErrDuplicateArtifact) {
		t.Fatalf("second Write() error = %v, want ErrDuplicateArtifact", err)
	}
}

func TestWriteNewRunDateDoesNotCollide(t *testing.T) {
	dir := t.TempDir()

	if _, err := New(dir, runA, zap.NewNop()).Write(testCIK, []byte(samplePayload)); err != nil {
		t.Fatal(err)
	}
	// Same CIK, next day's run: a new artifact, not an overwrite.
	if _, err := New(dir, runB, zap.NewNop()).Write(testCIK, []byte(samplePayload)); err != nil {
		t.Fatalf("Write() for a new run date error = %v", err)
	}

	for _, run := range []string{runA, runB} {
		if _, err := os.Stat(filepath.Join(dir, run, "CIK", testCIK, "submissions.json")); err != nil {
			t.Errorf("artifact for run %s missing: %v", run, err)
		}
	}
}

func TestWriteSummaryFailureIsRetryable(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, runA, zap.NewNop())

	// Block only the summary write: a directory where summary.json
	// should go makes the atomic rename fail after the raw payload
	// already landed.
	summaryPath := filepath.Join(dir, runA, "CIK", testCIK, "summary.json")
	if err := os.MkdirAll(summaryPath, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := w.Write(testCIK, []byte(samplePayload))
	if err == nil {
		t.Fatal("Write() succeeded with summary path blocked")
	}
	if errors.Is(err, ErrDuplicateArtifact) {
		t.Fatal("summary write failure surfaced as ErrDuplicateArtifact")
	}
	// The raw payload must be rolled back so a retry starts clean.
	if w.Exists(testCIK) {
		t.Error("raw artifact left behind after summary write failure")
	}

	// Once storage recovers, the same CIK writes normally.
	if err := os.Remove(summaryPath); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(testCIK, []byte(samplePayload)); err != nil {
		t.Errorf("Write() after storage recovered error = %v", err)
	}
}

func TestExists(t *testing.T) {
	w := New(t.TempDir(), runA, zap.NewNop())
	if w.Exists(testCIK) {
		t.Error("Exists() true before write")
	}
	if _, err := w.Write(testCIK, []byte(samplePayload)); err != nil {
		t.Fatal(err)
	}
	if !w.Exists(testCIK) {
		t.Error("Exists() false after write")
	}
}

func TestExtractSummary(t *testing.T) {
	now := time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)
	s, err := ExtractSummary(testCIK, []byte(samplePayload), now)
	if err != nil {
		t.Fatalf("ExtractSummary() error = %v", err)
	}

	if s.CIK != testCIK {
		t.Errorf("cik = %q", s.CIK)
	}
	if s.SIC != "3571" || s.SICDescription != "Electronic Computers" {
		t.Errorf("sic = %q / %q", s.SIC, s.SICDescription)
	}
	if len(s.Tickers) != 1 || s.Tickers[0] != "AAPL" {
		t.Errorf("tickers = %v", s.Tickers)
	}
	if len(s.FormerNames) != 1 || s.FormerNames[0] != "Apple Computer Inc" {
		t.Errorf("formerNames = %v", s.FormerNames)
	}
	if len(s.RecentFilings) != 2 {
		t.Fatalf("recent filings = %d, want 2", len(s.RecentFilings))
	}
	first := s.RecentFilings[0]
	if first.AccessionNumber != "0000320193-25-000001" || first.Form != "10-K" || first.FilingDate != "2025-01-15" {
		t.Errorf("first filing = %+v", first)
	}
	if !s.DownloadedAt.Equal(now) {
		t.Errorf("download_timestamp = %v, want %v", s.DownloadedAt, now)
	}
}

func TestExtractSummaryCapsRecentFilings(t *testing.T) {
	payload := `{"name": "Big Filer", "filings": {"recent": {"accessionNumber": [`
	for i := 0; i < 50; i++ {
		if i > 0 {
			payload += ","
		}
		payload += `"acc"`
	}
	payload += `]}}}`

	s, err := ExtractSummary(testCIK, []byte(payload), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if s.FilingsCount != 50 {
		t.Errorf("filings_count = %d, want 50", s.FilingsCount)
	}
	if len(s.RecentFilings) != recentFilingsKept {
		t.Errorf("recent filings kept = %d, want %d", len(s.RecentFilings), recentFilingsKept)
	}
}
