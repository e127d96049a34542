package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/paperflow/internal/bootstrap"
	"github.com/kirillkom/paperflow/internal/config"
	"github.com/kirillkom/paperflow/internal/observability/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

const serviceName = "paperflow-cli"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()
	// stdout carries JSON output and the MCP transport.
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*services, error) {
		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger, SkipQueue: true})
		if err != nil {
			return nil, err
		}
		return &services{
			Pipeline:     app.Pipeline,
			Previewer:    app.Pipeline,
			Corpus:       app.Corpus,
			Retention:    app.Pipeline,
			TrainingPath: cfg.TrainingPath,
			Close:        app.Close,
		}, nil
	}

	app := newCLIApp(open, os.Stdout)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
