package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/odyssey-erp/fxsync/internal/app"
	"github.com/odyssey-erp/fxsync/internal/fxsync"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	// Lambda has no scrape endpoint; run outcomes are reported through logs
	// and the invocation error.
	runner := fxsync.NewRunner(fxsync.RunnerConfig{
		Dependencies: fxsync.AWSDependencies(logger, nil),
		Logger:       logger,
	})
	lambda.Start(runner.HandleLambda)
}
