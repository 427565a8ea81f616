package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/api"
	"github.com/user/edgar-fetcher/internal/config"
	"github.com/user/edgar-fetcher/internal/domain"
	"github.com/user/edgar-fetcher/internal/fetcher"
	"github.com/user/edgar-fetcher/internal/fsutil"
	"github.com/user/edgar-fetcher/internal/manifest"
	"github.com/user/edgar-fetcher/internal/monitoring"
	"github.com/user/edgar-fetcher/internal/ratelimit"
	"github.com/user/edgar-fetcher/internal/report"
	"github.com/user/edgar-fetcher/internal/source"
	"github.com/user/edgar-fetcher/internal/writer"
)

const runDateLayout = "20060102"

func newFetchCmd(logger *zap.Logger) *cobra.Command {
	var singleCIK string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download submissions data for one CIK or the whole database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runFetch(cmd.Context(), cfg, singleCIK, logger)
		},
	}

	cmd.Flags().StringVar(&singleCIK, "cik", "", "fetch a single CIK instead of the full database")
	return cmd
}

func runFetch(parent context.Context, cfg *config.Config, singleCIK string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	companies, err := loadCompanies(cfg, singleCIK)
	if err != nil {
		return err
	}

	runDate := time.Now().Format(runDateLayout)
	store, err := manifest.Open(cfg.OutputDir, runDate, logger)
	if err != nil {
		return err
	}
	if err := store.SetTotal(len(companies)); err != nil {
		return err
	}

	client, err := fetcher.NewClient(cfg.BaseURL, cfg.UserAgent, cfg.Timeout())
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RequestRate)
	metrics := monitoring.NewMetrics()
	artifacts := writer.New(cfg.OutputDir, runDate, logger)
	pool := fetcher.NewPool(cfg, client, limiter, store, artifacts, metrics, logger)

	var server *api.Server
	if cfg.ProgressServer {
		server = api.NewServer(cfg, store, metrics, logger)
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("progress server stopped", zap.Error(err))
			}
		}()
		logger.Info("progress server listening", zap.String("port", cfg.ServerPort))
	}

	logger.Info("starting run",
		zap.String("run_date", runDate),
		zap.Int("identifiers", len(companies)),
		zap.Int("workers", cfg.Workers),
		zap.Float64("rate", cfg.RequestRate),
		zap.Int("max_attempts", cfg.MaxAttempts))

	runErr := pool.Run(ctx, companies)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = server.Shutdown(shutdownCtx)
		cancel()
	}

	if runErr != nil {
		// The manifest already holds every completed outcome; the run
		// is resumable. Report what we have and abort.
		summary := report.Build(store.Snapshot())
		fmt.Fprintln(os.Stderr, report.RenderMarkdown(summary))
		return fmt.Errorf("run aborted: %w", runErr)
	}

	m, err := store.Finalize()
	if err != nil {
		return err
	}
	summary := report.Build(m)

	if err := writeRunReports(cfg, runDate, summary); err != nil {
		return err
	}

	fmt.Println(report.RenderMarkdown(summary))

	if summary.Failed > 0 {
		return ErrPartialFailure
	}
	return nil
}

func loadCompanies(cfg *config.Config, singleCIK string) ([]domain.Company, error) {
	src := source.New(cfg.DatabasePath)
	if singleCIK != "" {
		cik := source.PadCIK(singleCIK)
		if cik == "" {
			return nil, fmt.Errorf("invalid CIK %q: must be a number of at most 10 digits", singleCIK)
		}
		// Enrich from the database when it is available; a bare record
		// is fine for one-off fetches.
		return []domain.Company{src.Lookup(cik)}, nil
	}
	return src.Load()
}

// writeRunReports emits the per-run Markdown report and the
// machine-readable results file next to the manifest.
func writeRunReports(cfg *config.Config, runDate string, summary report.Summary) error {
	dir := filepath.Join(cfg.OutputDir, runDate)

	md := report.RenderMarkdown(summary)
	if err := fsutil.WriteBytes(filepath.Join(dir, runDate+".md"), []byte(md)); err != nil {
		return err
	}

	results := struct {
		Timestamp string `json:"timestamp"`
		Settings  struct {
			Workers     int     `json:"workers"`
			Rate        float64 `json:"requests_per_second"`
			MaxAttempts int     `json:"max_attempts"`
		} `json:"settings"`
		Summary report.Summary `json:"summary"`
	}{Timestamp: time.Now().UTC().Format(time.RFC3339), Summary: summary}
	results.Settings.Workers = cfg.Workers
	results.Settings.Rate = cfg.RequestRate
	results.Settings.MaxAttempts = cfg.MaxAttempts

	return fsutil.WriteJSON(filepath.Join(dir, "download_results.json"), results)
}
