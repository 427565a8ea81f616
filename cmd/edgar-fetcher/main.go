package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/cli"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	os.Exit(cli.Execute(logger))
}
