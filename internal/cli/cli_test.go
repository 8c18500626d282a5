package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/internal/config"
	"github.com/matzehuels/exprflow/pkg/annotation"
	"github.com/matzehuels/exprflow/pkg/artifact"
	"github.com/matzehuels/exprflow/pkg/dataset"
	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/pipeline"
	"github.com/matzehuels/exprflow/pkg/render"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/store"
)

func testCLI() (*CLI, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&buf, LogDebug), &buf
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	c, _ := testCLI()
	root := c.RootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"run", "datasets", "clean", "filter", "map", "enrich", "plot", "browse", "serve", "runs", "cache", "completion"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("no-cache"))
}

func TestPipelineOptionsFromDefaults(t *testing.T) {
	opts, err := pipelineOptions(config.Default(), log.Default())
	require.NoError(t, err)

	assert.Equal(t, pipeline.DefaultDataset, opts.Dataset)
	assert.Equal(t, 0.1, opts.Alpha)
	assert.False(t, opts.SkipIndependentFiltering)
	assert.False(t, opts.SkipNetwork)
	assert.Equal(t, results.KeyAltID, opts.Key)
	assert.Equal(t, results.Either, opts.Direction)
	assert.Equal(t, 0.05, opts.PAdj)
	assert.Equal(t, 1.0, opts.Log2FC)
	assert.Equal(t, []render.Format{render.FormatSVG}, opts.Formats)
	assert.Equal(t, 20, opts.Enrich.TopN)
}

func TestPipelineOptionsOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.Levels = []string{"trt", "untrt"}
	cfg.Analysis.IndependentFiltering = false
	cfg.Filter.Direction = "down"
	cfg.Filter.Key = "symbol"
	cfg.Plot.Formats = []string{"svg,png", "pdf"}
	cfg.Plot.Network = false
	cfg.Mapping.Source = "none"

	opts, err := pipelineOptions(cfg, log.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{"trt", "untrt"}, opts.Levels)
	assert.True(t, opts.SkipIndependentFiltering)
	assert.True(t, opts.SkipNetwork)
	assert.Equal(t, results.Down, opts.Direction)
	assert.Equal(t, results.KeySymbol, opts.Key)
	assert.Equal(t, []render.Format{render.FormatSVG, render.FormatPNG, render.FormatPDF}, opts.Formats)
	assert.Equal(t, "none", opts.Mapping.Source)
}

func TestPipelineOptionsRejectsBadFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Plot.Formats = []string{"gif"}
	_, err := pipelineOptions(cfg, log.Default())
	require.Error(t, err)
}

func TestNewSinkLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := newSink(context.Background(), config.OutputConfig{Dir: dir}, "run")
	require.NoError(t, err)
	assert.IsType(t, &artifact.FS{}, sink)
	assert.DirExists(t, dir)
}

func TestDatasetRows(t *testing.T) {
	infos := dataset.List()
	require.NotEmpty(t, infos)
	rows := datasetRows(infos)
	require.Len(t, rows, len(infos))
	assert.Equal(t, infos[0].Name, rows[0][0])
}

func TestRunCommandOffline(t *testing.T) {
	t.Chdir(t.TempDir())
	out := filepath.Join(t.TempDir(), "out")
	dsn := filepath.Join(t.TempDir(), "runs.db")

	c, logs := testCLI()
	root := c.RootCommand()
	root.SetArgs([]string{"run",
		"--dataset", pipeline.DefaultDataset,
		"--reference", "untrt",
		"--mapping", "file",
		"--no-plots",
		"--no-cache",
		"--store", "sqlite", "--store-dsn", dsn,
		"-o", out,
	})
	require.NoError(t, root.ExecuteContext(context.Background()), logs.String())

	for _, name := range []string{pipeline.FileResultsTSV, pipeline.FileResultsJSON, pipeline.FileEnrichmentTSV, metricsFile} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, pipeline.FileReport))

	metrics, err := os.ReadFile(filepath.Join(out, metricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "exprflow_stage_duration_seconds")

	st, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusSucceeded, runs[0].Status)

	// The saved table drives the single-stage commands.
	table := filepath.Join(out, pipeline.FileResultsTSV)
	cleaned := filepath.Join(out, "cleaned.tsv")
	root = c.RootCommand()
	root.SetArgs([]string{"clean", table, "-o", cleaned})
	require.NoError(t, root.ExecuteContext(context.Background()))

	before, err := os.ReadFile(table)
	require.NoError(t, err)
	after, err := os.ReadFile(cleaned)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "a pipeline table is already clean")

	sig := filepath.Join(out, "significant.tsv")
	root = c.RootCommand()
	root.SetArgs([]string{"filter", table, "-o", sig})
	require.NoError(t, root.ExecuteContext(context.Background()))
	selected, err := results.ReadFile(sig)
	require.NoError(t, err)
	assert.NotZero(t, selected.Len())
}

func TestRunCommandInvalidLevels(t *testing.T) {
	t.Chdir(t.TempDir())
	c, _ := testCLI()
	root := c.RootCommand()
	root.SetArgs([]string{"run", "--levels", "untrt,placebo", "--mapping", "none", "--no-cache", "-o", t.TempDir()})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
}

func TestMapAndEnrichSaveInputs(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}
	mapping := write("mapping.tsv", "ensembl_gene_id\texternal_gene_name\tentrezgene_id\n"+
		"ENSG1\tTP53\t\n"+
		"ENSG1\tTP53\t7157\n"+
		"ENSG2\tBRCA1\t672\n")
	gmt := write("sets.gmt", "SET_A\tfirst\t7157\t672\nSET_B\tsecond\t672\n")
	table := filepath.Join(dir, "results.tsv")
	require.NoError(t, results.WriteFile(table, results.Table{Coefficient: "dex_trt_vs_untrt", Rows: []results.Row{
		{ID: "ENSG1", BaseMean: 10, Log2FoldChange: 2, PValue: 0.001, PAdj: 0.01},
		{ID: "ENSG2", BaseMean: 10, Log2FoldChange: -2, PValue: 0.001, PAdj: 0.01},
		{ID: "ENSG3", BaseMean: 10, Log2FoldChange: 0.1, PValue: 0.9, PAdj: 0.9},
	}}))

	c, logs := testCLI()
	saved := filepath.Join(dir, "saved.tsv")
	root := c.RootCommand()
	root.SetArgs([]string{"map", table, "--mapping", "file", "--mapping-file", mapping, "--save-mapping", saved, "--no-cache"})
	require.NoError(t, root.ExecuteContext(context.Background()), logs.String())

	mapped, err := results.ReadFile(table)
	require.NoError(t, err)
	assert.Equal(t, "7157", mapped.Rows[0].AltID, "the entry with an Entrez ID wins")
	assert.Equal(t, "672", mapped.Rows[1].AltID)

	f, err := os.Open(saved)
	require.NoError(t, err)
	defer f.Close()
	x, err := annotation.ReadMapping(f)
	require.NoError(t, err)
	assert.Len(t, x["ENSG1"], 2)
	assert.Len(t, x["ENSG2"], 1)
	assert.NotContains(t, x, "ENSG3")

	copied := filepath.Join(dir, "copy.gmt")
	root = c.RootCommand()
	root.SetArgs([]string{"enrich", table, "--genesets", gmt, "--save-genesets", copied, "--no-cache"})
	require.NoError(t, root.ExecuteContext(context.Background()), logs.String())

	want, err := enrich.ReadGMTFile(gmt)
	require.NoError(t, err)
	got, err := enrich.ReadGMTFile(copied)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompletionCommand(t *testing.T) {
	c, _ := testCLI()
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			root := c.RootCommand()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs([]string{"completion", shell})
			require.NoError(t, root.Execute())
			assert.Contains(t, out.String(), "exprflow")
		})
	}

	root := c.RootCommand()
	root.SetArgs([]string{"completion", "tcsh"})
	require.Error(t, root.Execute())
}

func TestCompleteDatasets(t *testing.T) {
	names, directive := completeDatasets(nil, nil, "")
	require.NotEmpty(t, names)
	assert.Contains(t, names[0], dataset.BuiltinPrefix)
	assert.Equal(t, cobra.ShellCompDirectiveFilterDirs, directive)
}
