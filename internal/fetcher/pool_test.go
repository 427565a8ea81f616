package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/config"
	"github.com/user/edgar-fetcher/internal/domain"
	"github.com/user/edgar-fetcher/internal/fsutil"
	"github.com/user/edgar-fetcher/internal/manifest"
	"github.com/user/edgar-fetcher/internal/monitoring"
	"github.com/user/edgar-fetcher/internal/ratelimit"
	"github.com/user/edgar-fetcher/internal/writer"
)

const poolRunDate = "20250825"

// countingServer serves canned submissions documents and counts
// requests per CIK path.
type countingServer struct {
	mu     sync.Mutex
	counts map[string]int
	// respond overrides the default 200 response per CIK.
	respond func(cik string, n int, w http.ResponseWriter)
	server  *httptest.Server
}

func newCountingServer(t *testing.T, respond func(cik string, n int, w http.ResponseWriter)) *countingServer {
	t.Helper()
	cs := &countingServer{counts: map[string]int{}, respond: respond}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cik := r.URL.Path[len("/CIK") : len(r.URL.Path)-len(".json")]
		cs.mu.Lock()
		cs.counts[cik]++
		n := cs.counts[cik]
		cs.mu.Unlock()
		if cs.respond != nil {
			cs.respond(cik, n, w)
			return
		}
		fmt.Fprintf(w, `{"name": "Company %s", "filings": {"recent": {"accessionNumber": []}}}`, cik)
	}))
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *countingServer) count(cik string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.counts[cik]
}

func (cs *countingServer) total() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, c := range cs.counts {
		n += c
	}
	return n
}

type harness struct {
	pool   *Pool
	store  *manifest.Store
	writer *writer.Writer
	dir    string
}

func newHarness(t *testing.T, serverURL string, workers, maxAttempts int, perSecond float64) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	store, err := manifest.Open(dir, poolRunDate, logger)
	if err != nil {
		t.Fatal(err)
	}

	client, err := NewClient(serverURL, "edgar-fetcher test contact@example.com", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Workers:       workers,
		MaxAttempts:   maxAttempts,
		RequestRate:   perSecond,
		BackoffBaseMS: 1,
		BackoffMaxMS:  10,
	}
	w := writer.New(dir, poolRunDate, logger)
	pool := NewPool(cfg, client, ratelimit.New(perSecond), store, w, monitoring.NewMetrics(), logger)
	return &harness{pool: pool, store: store, writer: w, dir: dir}
}

func ciks(n int) []domain.Company {
	out := make([]domain.Company, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Company{
			CIK:  fmt.Sprintf("%010d", i),
			Name: fmt.Sprintf("Company %d", i),
		})
	}
	return out
}

func TestRunCompletesBatchWithOnePersistentFailure(t *testing.T) {
	// Identifier #3 always answers 500; everything else succeeds.
	bad := fmt.Sprintf("%010d", 3)
	cs := newCountingServer(t, func(cik string, n int, w http.ResponseWriter) {
		if cik == bad {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"name": "Company %s"}`, cik)
	})

	h := newHarness(t, cs.server.URL, 2, 2, 500)
	if err := h.pool.Run(context.Background(), ciks(5)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	m := h.store.Snapshot()
	if len(m.Completed) != 4 {
		t.Errorf("completed = %d, want 4", len(m.Completed))
	}
	if len(m.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(m.Failed))
	}
	entry, ok := m.Failed[bad]
	if !ok {
		t.Fatalf("failed map missing %s: %+v", bad, m.Failed)
	}
	if entry.Reason != domain.ReasonAttemptsExhausted {
		t.Errorf("failure reason = %q, want %q", entry.Reason, domain.ReasonAttemptsExhausted)
	}
	if got := cs.count(bad); got != 2 {
		t.Errorf("requests for %s = %d, want max attempts (2)", bad, got)
	}

	// Nothing is left pending: every identifier has exactly one
	// terminal outcome.
	for _, c := range ciks(5) {
		if !h.store.IsDone(c.CIK) {
			t.Errorf("cik %s has no terminal outcome", c.CIK)
		}
	}
}

func TestRunNotFoundIsTerminalWithoutRetry(t *testing.T) {
	cs := newCountingServer(t, func(cik string, n int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
	})

	h := newHarness(t, cs.server.URL, 1, 3, 500)
	if err := h.pool.Run(context.Background(), ciks(1)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	cik := fmt.Sprintf("%010d", 1)
	if got := cs.count(cik); got != 1 {
		t.Errorf("requests = %d, want exactly 1 for a 404", got)
	}
	entry := h.store.Snapshot().Failed[cik]
	if entry.Reason != "http-404" {
		t.Errorf("reason = %q, want http-404", entry.Reason)
	}
	if entry.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", entry.Attempts)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	// 503 twice, then success.
	cs := newCountingServer(t, func(cik string, n int, w http.ResponseWriter) {
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"name": "Company %s"}`, cik)
	})

	h := newHarness(t, cs.server.URL, 1, 5, 500)
	if err := h.pool.Run(context.Background(), ciks(1)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	cik := fmt.Sprintf("%010d", 1)
	if got := cs.count(cik); got != 3 {
		t.Errorf("requests = %d, want 3 (two 503s then success)", got)
	}
	entry, ok := h.store.Snapshot().Completed[cik]
	if !ok {
		t.Fatal("cik not completed after transient failures cleared")
	}
	if entry.Attempts != 3 {
		t.Errorf("recorded attempts = %d, want 3", entry.Attempts)
	}
}

func TestRunIdempotentResume(t *testing.T) {
	cs := newCountingServer(t, nil)
	h := newHarness(t, cs.server.URL, 2, 3, 500)

	// Two of three identifiers already finished in an earlier pass.
	for i := 1; i <= 2; i++ {
		err := h.store.RecordSuccess(domain.Outcome{
			CIK:       fmt.Sprintf("%010d", i),
			Status:    domain.StatusCompleted,
			Attempts:  1,
			FetchedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := h.pool.Run(context.Background(), ciks(3)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := cs.total(); got != 1 {
		t.Errorf("total requests = %d, want 1 (completed identifiers skipped)", got)
	}
	m := h.store.Snapshot()
	if m.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", m.Skipped)
	}
	if len(m.Completed) != 3 {
		t.Errorf("completed = %d, want 3", len(m.Completed))
	}
}

func TestRunAdoptsOrphanArtifact(t *testing.T) {
	cs := newCountingServer(t, nil)
	h := newHarness(t, cs.server.URL, 1, 3, 500)

	// Artifact on disk but no manifest entry: the previous pass died
	// between the write and the record.
	cik := fmt.Sprintf("%010d", 1)
	if _, err := h.writer.Write(cik, []byte(`{"name": "Orphan Co"}`)); err != nil {
		t.Fatal(err)
	}

	if err := h.pool.Run(context.Background(), ciks(1)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := cs.total(); got != 0 {
		t.Errorf("total requests = %d, want 0", got)
	}
	if !h.store.IsDone(cik) {
		t.Error("orphan artifact was not recorded as completed")
	}
}

func TestRunSummaryWriteFailureStaysRetryable(t *testing.T) {
	// Upstream is healthy; only the summary write fails, persistently.
	// Storage I/O is transient by classification, so the CIK must burn
	// its full attempt budget and end as attempts-exhausted, never as
	// a duplicate-artifact failure.
	cs := newCountingServer(t, nil)
	h := newHarness(t, cs.server.URL, 1, 3, 500)

	cik := fmt.Sprintf("%010d", 1)
	blocked := filepath.Join(h.dir, poolRunDate, "CIK", cik, "summary.json")
	if err := os.MkdirAll(blocked, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := h.pool.Run(context.Background(), ciks(1)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := cs.count(cik); got != 3 {
		t.Errorf("requests = %d, want full attempt budget (3)", got)
	}
	entry, ok := h.store.Snapshot().Failed[cik]
	if !ok {
		t.Fatal("cik has no terminal outcome")
	}
	if entry.Reason != domain.ReasonAttemptsExhausted {
		t.Errorf("reason = %q, want %q", entry.Reason, domain.ReasonAttemptsExhausted)
	}
	if entry.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", entry.Attempts)
	}
	// No half-written artifact survives to confuse a later resume.
	if h.writer.Exists(cik) {
		t.Error("raw artifact left behind without its summary")
	}
}

func TestRunCancellationLeavesManifestConsistent(t *testing.T) {
	release := make(chan struct{})
	cs := newCountingServer(t, func(cik string, n int, w http.ResponseWriter) {
		<-release
		fmt.Fprintf(w, `{"name": "Company %s"}`, cik)
	})
	t.Cleanup(func() { close(release) })

	h := newHarness(t, cs.server.URL, 2, 3, 500)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.pool.Run(ctx, ciks(10))
	}()

	// Let a couple of requests get in flight, then stop the run.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}

	// The manifest on disk must be parseable and reflect only
	// terminal outcomes; unfinished identifiers stay unrecorded.
	var m domain.Manifest
	if err := fsutil.ReadJSON(h.store.Path(), &m); err != nil {
		t.Fatalf("manifest unreadable after cancellation: %v", err)
	}
	if len(m.Completed)+len(m.Failed) > 10 {
		t.Errorf("manifest holds %d outcomes for 10 identifiers", len(m.Completed)+len(m.Failed))
	}
}

func TestRunWorkerCountDoesNotExceedRateLimit(t *testing.T) {
	cs := newCountingServer(t, nil)

	// 10 workers but 20 req/s: 5 requests need at least 4 intervals.
	h := newHarness(t, cs.server.URL, 10, 1, 20)
	start := time.Now()
	if err := h.pool.Run(context.Background(), ciks(5)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)

	if min := 4 * (time.Second / 20); elapsed < min {
		t.Errorf("5 fetches with 10 workers took %v, want at least %v (rate-bound)", elapsed, min)
	}
	if got := cs.total(); got != 5 {
		t.Errorf("total requests = %d, want 5", got)
	}
}
