package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/pkg/annotation"
	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/results"
)

// Commands in this file run single pipeline stages on a saved results.tsv.

// cleanCommand creates the clean command.
func (c *CLI) cleanCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "clean <results.tsv>",
		Short: "Drop rows without padj and deduplicate by key",
		Long: `Clean removes rows with a missing adjusted p-value and keeps, per
identifier key, the row with the smallest padj. Cleaning a cleaned table
changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(cfg.Config, loggerFromContext(cmd.Context()))
			if err != nil {
				return err
			}
			t, err := results.ReadFile(args[0])
			if err != nil {
				return err
			}

			cleaned := results.Clean(t, opts.CleanOptions())
			if output == "" {
				output = args[0]
			}
			if err := results.WriteFile(output, cleaned); err != nil {
				return err
			}
			printSuccess("Kept %d of %d rows", cleaned.Len(), t.Len())
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: overwrite the input)")
	cmd.Flags().String("key", "altId", "deduplication key: altId, symbol or id")
	return cmd
}

// filterCommand creates the filter command.
func (c *CLI) filterCommand() *cobra.Command {
	var (
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "filter <results.tsv>",
		Short: "Select significant genes from a result table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(cfg.Config, loggerFromContext(cmd.Context()))
			if err != nil {
				return err
			}
			t, err := results.ReadFile(args[0])
			if err != nil {
				return err
			}

			th := opts.Thresholds()
			sel := results.Filter(t, th)
			printSuccess("%d significant of %d genes (padj < %g, |log2FC| > %g, %s)",
				len(sel.Significant), len(sel.Universe), th.PAdj, th.Log2FC, th.Direction)

			passing := results.Table{Coefficient: t.Coefficient}
			for _, r := range t.Rows {
				if th.Passes(r) {
					passing.Rows = append(passing.Rows, r)
				}
			}
			passing = passing.SortByPAdj()
			if output != "" {
				if err := results.WriteFile(output, passing); err != nil {
					return err
				}
				printFile(output)
			}
			if passing.Len() > 0 {
				fmt.Fprintln(stdout, renderTable(
					[]string{string(th.Key), "symbol", "log2FC", "padj"},
					rowCells(passing, th.Key, limit),
				))
			}
			return nil
		},
	}

	addFilterFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the significant rows to this TSV")
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to print")
	return cmd
}

// mapCommand creates the map command.
func (c *CLI) mapCommand() *cobra.Command {
	var output, saveMapping string

	cmd := &cobra.Command{
		Use:   "map <results.tsv>",
		Short: "Attach gene symbols and alternate IDs to a result table",
		Long: `Map looks up every table ID through the configured mapping source
(BioMart, an offline TSV, or BioMart with the file as fallback) and fills
the symbol and altId columns. --save-mapping writes the answer in the
offline TSV format, ready to be used as --mapping-file.`,
		Example: `  exprflow map results.tsv --mapping remote --save-mapping mapping.tsv`,
		Args:    cobra.ExactArgs(1),
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
			t, err := results.ReadFile(args[0])
			if err != nil {
				return err
			}
			runner, err := c.newRunner(ctx, cfg.Config)
			if err != nil {
				return err
			}
			defer runner.Close()

			spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Mapping %d identifiers...", t.Len()))
			spinner.Start()
			x, err := runner.Lookup(ctx, t.IDs(), opts, nil)
			spinner.Stop()
			if err != nil && errors.IsFatal(err) {
				return err
			}
			if err != nil {
				printWarning("%s", errors.UserMessage(err))
			}
			mapped := annotation.Join(t, x)

			if output == "" {
				output = args[0]
			}
			if err := results.WriteFile(output, mapped); err != nil {
				return err
			}
			unmapped := 0
			for _, r := range mapped.Rows {
				if r.Symbol == "" && r.AltID == "" {
					unmapped++
				}
			}
			printSuccess("Mapped %d of %d identifiers", mapped.Len()-unmapped, mapped.Len())
			printFile(output)

			if saveMapping != "" {
				if len(x) == 0 {
					printWarning("No identifiers mapped; %s not written", saveMapping)
					return nil
				}
				if err := writeFileWith(saveMapping, func(w io.Writer) error {
					return annotation.WriteMapping(w, t.IDs(), x)
				}); err != nil {
					return err
				}
				printFile(saveMapping)
			}
			return nil
		},
	}

	addMappingFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: overwrite the input)")
	cmd.Flags().StringVar(&saveMapping, "save-mapping", "", "also write the mapping as an offline TSV")
	return cmd
}

// enrichCommand creates the enrich command.
func (c *CLI) enrichCommand() *cobra.Command {
	var output, saveGeneSets string

	cmd := &cobra.Command{
		Use:   "enrich <results.tsv>",
		Short: "Run over-representation analysis on a result table",
		Long: `Enrich selects significant genes with the filter thresholds and tests
every gene set of --genesets for over-representation against the table's
universe. --save-genesets writes the collection used, which keeps a
downloaded GMT for offline runs.`,
		Example: `  exprflow enrich results.tsv --genesets hallmark.gmt --direction up
  exprflow enrich results.tsv --genesets https://example.org/c5.gmt --save-genesets c5.gmt`,
		Args: cobra.ExactArgs(1),
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
			t, err := results.ReadFile(args[0])
			if err != nil {
				return err
			}
			runner, err := c.newRunner(ctx, cfg.Config)
			if err != nil {
				return err
			}
			defer runner.Close()

			if saveGeneSets != "" {
				sets, err := runner.GeneSets(ctx, opts, nil)
				if err != nil {
					return err
				}
				if err := writeFileWith(saveGeneSets, func(w io.Writer) error {
					return enrich.WriteGMT(w, sets)
				}); err != nil {
					return err
				}
				printFile(saveGeneSets)
			}

			sel := results.Filter(t, opts.Thresholds())
			spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Testing %d genes...", len(sel.Significant)))
			spinner.Start()
			res, err := runner.Enrich(ctx, sel, opts, nil)
			spinner.Stop()
			if err != nil {
				return err
			}

			printSuccess("%d enriched terms (%d of %d genes annotated, %d sets tested)",
				len(res.Rows), res.Selected, res.Universe, res.Tested)
			if output != "" {
				if err := writeEnrichment(output, res); err != nil {
					return err
				}
				printFile(output)
			}
			if len(res.Rows) > 0 {
				fmt.Fprintln(stdout, renderTable(
					[]string{"term", "ratio", "count", "padj"},
					termCells(res.Top(opts.Enrich.TopN)),
				))
			}
			return nil
		},
	}

	addFilterFlags(cmd)
	addEnrichFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the enrichment table to this TSV")
	cmd.Flags().StringVar(&saveGeneSets, "save-genesets", "", "also write the gene sets used as GMT")
	return cmd
}

// writeFileWith creates path and fills it with write.
func writeFileWith(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeEnrichment(path string, res enrich.Result) error {
	return writeFileWith(path, func(w io.Writer) error { return enrich.WriteTSV(w, res) })
}

func readEnrichment(path string) (enrich.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return enrich.Result{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "enrichment table %s", path)
	}
	defer f.Close()
	return enrich.ReadTSV(f)
}

// rowCells formats at most limit rows for renderTable.
func rowCells(t results.Table, key results.Key, limit int) [][]string {
	n := t.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	cells := make([][]string, 0, n)
	for _, r := range t.Rows[:n] {
		cells = append(cells, []string{
			r.ValueOrID(key),
			r.Symbol,
			formatFloat(r.Log2FoldChange, 3),
			formatPValue(r.PAdj),
		})
	}
	return cells
}

func termCells(terms []enrich.Term) [][]string {
	cells := make([][]string, 0, len(terms))
	for _, t := range terms {
		name := t.Description
		if name == "" {
			name = t.ID
		}
		cells = append(cells, []string{name, t.GeneRatio, strconv.Itoa(t.Count), formatPValue(t.PAdj)})
	}
	return cells
}

func formatFloat(v float64, prec int) string {
	if results.Missing(v) {
		return results.NAString
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func formatPValue(v float64) string {
	if results.Missing(v) {
		return results.NAString
	}
	return strconv.FormatFloat(v, 'g', 3, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
