package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/edgar-fetcher/internal/config"
	"github.com/user/edgar-fetcher/internal/domain"
	"github.com/user/edgar-fetcher/internal/fsutil"
	"github.com/user/edgar-fetcher/internal/manifest"
	"github.com/user/edgar-fetcher/internal/report"
)

func newStatusCmd() *cobra.Command {
	var (
		date   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Render the status report for a run's manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if date == "" {
				date = time.Now().Format(runDateLayout)
			}

			path := filepath.Join(cfg.OutputDir, date, manifest.FileName)
			var m domain.Manifest
			if err := fsutil.ReadJSON(path, &m); err != nil {
				return fmt.Errorf("no manifest for run %s: %w", date, err)
			}

			summary := report.Build(m)
			if asJSON {
				out, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Println(report.RenderMarkdown(summary))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "run date (YYYYMMDD), defaults to today")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the machine-readable summary")
	return cmd
}
