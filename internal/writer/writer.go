// Package writer persists successful fetch results: the raw
// submissions payload plus an extracted-fields summary, one directory
// per CIK per run date. Artifacts are never overwritten; a new run
// date means new files.
package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/domain"
	"github.com/user/edgar-fetcher/internal/fsutil"
)

const (
	submissionsFile = "submissions.json"
	summaryFile     = "summary.json"
	cikDirName      = "CIK"
)

// ErrDuplicateArtifact is returned when a second write happens for the
// same CIK within one run date. The manifest invariant makes this a
// logic error rather than an expected condition.
var ErrDuplicateArtifact = errors.New("artifact already exists for cik in this run")

// Writer stores per-CIK artifacts under <root>/<runDate>/CIK/<cik>/.
type Writer struct {
	root    string
	runDate string
	logger  *zap.Logger
}

func New(outputDir, runDate string, logger *zap.Logger) *Writer {
	return &Writer{root: outputDir, runDate: runDate, logger: logger}
}

// ArtifactPath returns where the raw payload for a CIK lives (or would
// live) in this run.
func (w *Writer) ArtifactPath(cik string) string {
	return filepath.Join(w.root, w.runDate, cikDirName, cik, submissionsFile)
}

// Exists reports whether this run already produced an artifact for the
// CIK. Used to short-circuit before any request is issued.
func (w *Writer) Exists(cik string) bool {
	_, err := os.Stat(w.ArtifactPath(cik))
	return err == nil
}

// Write persists the raw payload and its derived summary. Each file is
// written atomically; exactly one worker writes a given CIK, so there
// is no contention below the manifest layer.
func (w *Writer) Write(cik string, payload []byte) (domain.SubmissionsSummary, error) {
	path := w.ArtifactPath(cik)
	if w.Exists(cik) {
		return domain.SubmissionsSummary{}, fmt.Errorf("%w: %s", ErrDuplicateArtifact, cik)
	}

	summary, err := ExtractSummary(cik, payload, time.Now().UTC())
	if err != nil {
		return domain.SubmissionsSummary{}, fmt.Errorf("extract summary for %s: %w", cik, err)
	}

	if err := fsutil.WriteBytes(path, payload); err != nil {
		return domain.SubmissionsSummary{}, err
	}
	if err := fsutil.WriteJSON(filepath.Join(filepath.Dir(path), summaryFile), summary); err != nil {
		// Roll the raw payload back so the attempt stays retryable; a
		// half-written artifact would trip the duplicate guard on the
		// next attempt and mis-terminate the identifier.
		_ = os.Remove(path)
		return domain.SubmissionsSummary{}, err
	}

	w.logger.Debug("artifact written",
		zap.String("cik", cik),
		zap.String("path", path),
		zap.Int("filings", summary.FilingsCount))
	return summary, nil
}
