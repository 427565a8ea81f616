// Package cli wires the cobra commands for the fetcher. Flags are
// bound to viper keys so every knob is also settable through the
// environment or a .env file.
package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Exit codes. Terminal per-identifier failures are recorded in the
// manifest and are not fatal, but the caller still needs to see them.
const (
	ExitOK             = 0
	ExitAborted        = 1
	ExitPartialFailure = 2
)

// ErrPartialFailure signals a run that completed with at least one
// terminal failure recorded in the manifest.
var ErrPartialFailure = errors.New("run completed with terminal failures")

func NewRootCmd(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "edgar-fetcher",
		Short:         "Bulk downloader for SEC EDGAR submissions data",
		Long:          "Downloads per-CIK filing-history documents from the SEC submissions API\nwith bounded concurrency, a global request-rate ceiling, retries with\nexponential backoff, and resumable per-run manifests.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("database", "", "path to the CIK database JSON file")
	pf.String("output", "", "output directory for artifacts and manifests")
	pf.Int("workers", 10, "number of concurrent fetch workers")
	pf.Float64("rate", 8.0, "maximum requests per second across all workers")
	pf.Int("max-attempts", 3, "attempts per identifier before a terminal failure")
	pf.Int("timeout", 30, "per-request timeout in seconds")

	viper.BindPFlag("CIK_DATABASE", pf.Lookup("database"))
	viper.BindPFlag("OUTPUT_DIR", pf.Lookup("output"))
	viper.BindPFlag("FETCH_WORKERS", pf.Lookup("workers"))
	viper.BindPFlag("REQUEST_RATE", pf.Lookup("rate"))
	viper.BindPFlag("MAX_ATTEMPTS", pf.Lookup("max-attempts"))
	viper.BindPFlag("REQUEST_TIMEOUT", pf.Lookup("timeout"))

	root.AddCommand(newFetchCmd(logger))
	root.AddCommand(newStatusCmd())

	return root
}

// Execute runs the CLI and maps the outcome to an exit code:
// 0 all succeeded, 2 completed with recorded terminal failures,
// 1 aborted before completion.
func Execute(logger *zap.Logger) int {
	root := NewRootCmd(logger)
	err := root.Execute()
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPartialFailure):
		return ExitPartialFailure
	default:
		logger.Error("run aborted", zap.Error(err))
		return ExitAborted
	}
}
