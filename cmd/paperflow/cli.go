package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	mcpadapter "github.com/kirillkom/paperflow/internal/adapters/mcp"
	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
	"github.com/kirillkom/paperflow/internal/infrastructure/report"
)

// services are the use cases a command needs. Close releases their connections.
type services struct {
	Pipeline     ports.PipelineExecutor
	Previewer    ports.DocumentPreviewer
	Corpus       ports.CorpusRebuilder
	Retention    ports.RetentionManager
	TrainingPath string
	Close        func()
}

type openFunc func(ctx context.Context) (*services, error)

// newCLIApp creates the CLI application with all commands. Services are opened
// per command so help and version need no backends.
func newCLIApp(open openFunc, stdout io.Writer) *cli.App {
	app := &cli.App{
		Name:    "paperflow",
		Usage:   "Classify and file incoming documents",
		Version: Version,
		Writer:  stdout,
		Commands: []*cli.Command{
			runCmd(open, stdout),
			trainCmd(open, stdout),
			classifyCmd(open, stdout),
			pruneCmd(open, stdout),
			mcpCmd(open),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func withServices(open openFunc, fn func(c *cli.Context, svc *services) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := open(c.Context)
		if err != nil {
			return outputError(err)
		}
		if svc.Close != nil {
			defer svc.Close()
		}
		return fn(c, svc)
	}
}

func runCmd(open openFunc, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Process every pending source document and print the run summary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "report", Aliases: []string{"r"}, Usage: "Also write the summary as an XLSX workbook to this path"},
			&cli.StringFlag{Name: "request-id", Usage: "Correlation id recorded in the logs"},
		},
		Action: withServices(open, func(c *cli.Context, svc *services) error {
			summary, runErr := svc.Pipeline.Run(c.Context, domain.RunRequest{RequestID: c.String("request-id")})
			if summary != nil {
				if err := outputJSON(stdout, summary); err != nil {
					return outputError(err)
				}
				if path := c.String("report"); path != "" {
					if err := writeReport(path, summary); err != nil {
						return outputError(err)
					}
				}
			}
			if runErr != nil {
				return outputError(runErr)
			}
			return nil
		}),
	}
}

func trainCmd(open openFunc, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Rebuild the exemplar index from a directory of labeled documents",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Training directory (defaults to TRAINING_PATH)"},
		},
		Action: withServices(open, func(c *cli.Context, svc *services) error {
			dir := c.String("dir")
			if dir == "" {
				dir = svc.TrainingPath
			}
			stats, err := svc.Corpus.Rebuild(c.Context, dir)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(stdout, stats)
		}),
	}
}

func classifyCmd(open openFunc, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify one file without filing it",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(domain.WrapError(domain.ErrInvalidInput, "classify", errors.New("exactly one file argument is required")))
			}
			path := c.Args().First()
			data, err := os.ReadFile(path)
			if err != nil {
				return outputError(domain.WrapError(domain.ErrIO, "read document", err))
			}
			return withServices(open, func(c *cli.Context, svc *services) error {
				cls, err := svc.Previewer.Preview(c.Context, filepath.Base(path), data)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(stdout, cls)
			})(c)
		},
	}
}

func pruneCmd(open openFunc, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Forget processed source identities older than the given number of days",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "older-than", Required: true, Usage: "Retention window in days"},
		},
		Action: func(c *cli.Context) error {
			days := c.Int("older-than")
			if days < 1 {
				return outputError(domain.WrapError(domain.ErrInvalidInput, "prune", errors.New("--older-than must be at least 1")))
			}
			return withServices(open, func(c *cli.Context, svc *services) error {
				removed, err := svc.Retention.Prune(c.Context, days)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(stdout, map[string]int{"removed": removed})
			})(c)
		},
	}
}

func mcpCmd(open openFunc) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the pipeline tools over MCP stdio",
		Action: withServices(open, func(_ *cli.Context, svc *services) error {
			err := mcpadapter.Run(mcpadapter.Deps{
				Pipeline:     svc.Pipeline,
				Previewer:    svc.Previewer,
				Corpus:       svc.Corpus,
				Retention:    svc.Retention,
				TrainingPath: svc.TrainingPath,
			}, Version)
			if err != nil {
				return outputError(err)
			}
			return nil
		}),
	}
}

func writeReport(path string, summary *domain.RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteXLSX(f, summary); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputError(err error) error {
	return cli.Exit(fmt.Sprintf("[%s] %s", domain.ErrorCode(err), err.Error()), 1)
}

