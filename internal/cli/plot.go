package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/pipeline"
	"github.com/matzehuels/exprflow/pkg/results"
)

// plotCommand creates the plot command for rendering a saved table.
func (c *CLI) plotCommand() *cobra.Command {
	var (
		enrichment string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "plot <results.tsv>",
		Short: "Render figures and the HTML report for a saved table",
		Long: `Plot draws the MA and volcano plots of a result table. With
--enrichment it also draws the enrichment dot, bar and network plots;
without it those figures show "no data".`,
		Example: `  exprflow plot out/results.tsv --enrichment out/enrichment.tsv --format svg,pdf`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(cfg.Config, logger)
			if err != nil {
				return err
			}
			t, err := results.ReadFile(args[0])
			if err != nil {
				return err
			}
			res := &pipeline.Result{Table: t, Coefficient: t.Coefficient}
			if enrichment != "" {
				if res.Enrichment, err = readEnrichment(enrichment); err != nil {
					return err
				}
			}
			if output == "" {
				output = filepath.Dir(args[0])
			}

			prog := newProgress(logger)
			artifacts, err := pipeline.Render(ctx, res, opts)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(output, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", output)
			}
			for _, name := range sortedKeys(artifacts) {
				path := filepath.Join(output, name)
				if err := os.WriteFile(path, artifacts[name], 0o644); err != nil {
					return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
				}
				printFile(path)
			}
			prog.done("Rendered figures")
			return nil
		},
	}

	cmd.Flags().StringVar(&enrichment, "enrichment", "", "enrichment.tsv to draw the term plots from")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default: next to the table)")
	cmd.Flags().Int("top", pipeline.DefaultTopN, "enriched terms shown in plots")
	addPlotFlags(cmd)
	return cmd
}
