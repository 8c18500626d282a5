// Package cli implements the exprflow command-line interface.
//
// This package provides commands for running the differential-expression
// pipeline on a dataset bundle, re-running its later stages on a saved
// result table, browsing and serving the outputs, and managing the response
// cache. The CLI is built using cobra and supports verbose logging via the
// charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - run: Fit, test, annotate, enrich and plot one comparison
//   - datasets: List the builtin bundles
//   - clean, filter, map, enrich, plot: Single stages on a saved results.tsv
//   - browse: Page through a result table in the terminal
//   - serve: Serve the report, tables and metrics of an output directory
//   - runs: List runs recorded in the run store
//   - cache: Manage the response cache
//
// # Configuration
//
// Every command reads the layered configuration of internal/config; flags
// override the config file and EXPRFLOW_ environment variables.
//
// # Logging
//
// Logs go to stderr. --verbose (-v) enables debug output and --log-format
// switches between text, json and logfmt for log collectors. Commands find
// the logger on their context.
//
// # Example
//
//	c := cli.New(os.Stderr, cli.LogInfo)
//	if err := c.RootCommand().ExecuteContext(ctx); err != nil {
//	    os.Exit(1)
//	}
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger writes timestamped text logs at level to w.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

var logFormats = map[string]log.Formatter{
	"text":   log.TextFormatter,
	"json":   log.JSONFormatter,
	"logfmt": log.LogfmtFormatter,
}

// parseLogFormat resolves a --log-format value.
func parseLogFormat(name string) (log.Formatter, error) {
	f, ok := logFormats[name]
	if !ok {
		return 0, fmt.Errorf("unknown log format %q (want text, json or logfmt)", name)
	}
	return f, nil
}

// progress logs how long an operation took.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Analysis finished (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Info(msg, "elapsed", time.Since(p.start).Round(time.Millisecond))
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerFromContext returns the command logger, or log.Default() outside a
// command.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
