package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/pkg/observability"
	"github.com/matzehuels/exprflow/pkg/pipeline"
)

// runCommand creates the run command for the full analysis.
func (c *CLI) runCommand() *cobra.Command {
	var skipPlots bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full analysis on a dataset bundle",
		Long: `Run loads a dataset bundle, fits the negative binomial model, tests the
chosen comparison, shrinks fold changes, maps identifiers, filters
significant genes, runs over-representation analysis and renders figures.

Outputs are written to --out and, with --s3-bucket, mirrored to S3.`,
		Example: `  # Treated vs untreated on the builtin dataset
  exprflow run --reference untrt

  # Offline run with PNG figures
  exprflow run --dataset ./bundle --mapping file --format svg,png -o results/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(cfg.Config, loggerFromContext(ctx))
			if err != nil {
				return err
			}
			opts.SkipPlots = skipPlots

			runner, err := c.newRunner(ctx, cfg.Config)
			if err != nil {
				return err
			}
			defer runner.Close()

			sink, err := newSink(ctx, cfg.Output, time.Now().UTC().Format("20060102T150405Z"))
			if err != nil {
				return err
			}
			runner.Sink = sink

			return c.runPipeline(ctx, runner, opts, cfg.Output.Dir)
		},
	}

	addDatasetFlags(cmd)
	addAnalysisFlags(cmd)
	addFilterFlags(cmd)
	addMappingFlags(cmd)
	addEnrichFlags(cmd)
	addPlotFlags(cmd)
	addOutputFlags(cmd)
	addStoreFlags(cmd)
	cmd.Flags().String("cache-driver", "file", "response cache: file, redis or none")
	cmd.Flags().BoolVar(&skipPlots, "no-plots", false, "skip figures and the HTML report")

	return cmd
}

// runPipeline executes one run with Prometheus hooks installed and writes
// the metrics textfile next to the artifacts, also for failed runs.
func (c *CLI) runPipeline(ctx context.Context, runner *pipeline.Runner, opts pipeline.Options, outDir string) error {
	logger := loggerFromContext(ctx)

	hooks := observability.NewPrometheusHooks(prometheus.NewRegistry())
	observability.SetCacheHooks(hooks)
	observability.SetHTTPHooks(hooks)
	defer observability.Reset()

	// Debug output would interleave with the spinner line.
	var spinner *Spinner
	if logger.GetLevel() > log.DebugLevel {
		spinner = newSpinnerWithContext(ctx, "Loading "+opts.Dataset+"...")
		observability.SetPipelineHooks(stageSpinner{next: hooks, spinner: spinner})
		spinner.Start()
	} else {
		observability.SetPipelineHooks(hooks)
	}

	prog := newProgress(logger)
	res, err := runner.Execute(ctx, opts)
	if spinner != nil {
		spinner.Stop()
	}

	metrics := filepath.Join(outDir, metricsFile)
	if werr := hooks.WriteTextfile(metrics); werr != nil {
		logger.Warn("could not write metrics", "path", metrics, "err", werr)
	}
	if err != nil {
		return err
	}
	prog.done("Analysis finished")

	printRunSummary(res)
	if res.Location != "" {
		printNewline()
		printNextStep("Browse the table", "exprflow browse "+filepath.Join(outDir, pipeline.FileResultsTSV))
		printNextStep("Open the report", "exprflow serve --dir "+outDir)
	}
	return nil
}

func printRunSummary(res *pipeline.Result) {
	printSuccess("Tested %s", StyleHighlight.Render(res.Coefficient))
	printStats(res.Stats.Features, res.Stats.Significant, res.Stats.Terms, len(res.Warnings))
	for _, st := range res.Stats.Stages {
		printDetail("%-8s %6d  %s", st.Name, st.Items, st.Duration.Round(time.Millisecond))
	}
	for _, w := range res.Warnings {
		printWarning("%s", w)
	}
	if res.Location == "" {
		return
	}
	printNewline()
	printKeyValue("output", res.Location)
	for _, name := range artifactNames(res) {
		printFile(name)
	}
	printFile(metricsFile)
}

// artifactNames lists the persisted files in write order.
func artifactNames(res *pipeline.Result) []string {
	names := []string{pipeline.FileResultsTSV, pipeline.FileResultsJSON, pipeline.FileEnrichmentTSV}
	return append(names, sortedKeys(res.Artifacts)...)
}
