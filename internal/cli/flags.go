package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/pkg/dataset"
	"github.com/matzehuels/exprflow/pkg/pipeline"
)

// Flag defaults here are for help text only. The effective defaults come
// from internal/config, and a flag overrides them only when set.

func addDatasetFlags(cmd *cobra.Command) {
	cmd.Flags().String("dataset", pipeline.DefaultDataset, "bundle directory or builtin:<name>")
	_ = cmd.RegisterFlagCompletionFunc("dataset", completeDatasets)
}

// completeDatasets offers the builtin bundles and falls back to directories.
func completeDatasets(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	infos := dataset.List()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name+"\t"+info.Description)
	}
	return names, cobra.ShellCompDirectiveFilterDirs
}

func addAnalysisFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("reference", "", "control level of the condition factor")
	f.StringSlice("levels", nil, "full level order, reference first (wins over --reference)")
	f.String("coefficient", "", "coefficient to test (default: the last one)")
	f.Float64("alpha", pipeline.DefaultAlpha, "FDR target of independent filtering")
	f.String("shrink", pipeline.DefaultShrink, "fold-change shrinkage: normal or none")
}

func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("padj", 0.05, "adjusted p-value cutoff (strict)")
	f.Float64("lfc", 1, "absolute log2 fold-change cutoff (strict)")
	f.String("direction", "either", "regulation direction: either, up or down")
	f.String("key", "altId", "identifier used for deduplication and enrichment: altId, symbol or id")
}

func addMappingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("mapping", pipeline.DefaultMappingSource, "mapping source: auto, remote, file or none")
	f.String("mapping-url", "", "BioMart martservice endpoint")
	f.String("mapping-file", "", "offline mapping TSV (default: the bundle's)")
	f.Bool("refresh", false, "ignore cached mappings and gene sets")
}

func addEnrichFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("genesets", "", "GMT file or http(s) URL (default: the bundle's)")
	f.Int("top", pipeline.DefaultTopN, "enriched terms shown in plots")
}

func addPlotFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "svg", "plot formats: svg, png, pdf (comma-separated)")
}

func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("out", "o", "exprflow-out", "output directory")
	f.String("s3-bucket", "", "mirror artifacts to this S3 bucket")
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("store", "none", "run store: none, sqlite or postgres")
	f.String("store-dsn", "", "run store DSN (file path for sqlite)")
}
