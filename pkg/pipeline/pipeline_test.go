package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/annotation"
	"github.com/matzehuels/exprflow/pkg/artifact"
	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/observability"
	"github.com/matzehuels/exprflow/pkg/render"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/store"
)

// offlineOptions runs the builtin bundle without touching the network.
func offlineOptions() Options {
	opts := DefaultOptions()
	opts.Reference = "untrt"
	opts.Mapping.Source = string(annotation.SourceFile)
	return opts
}

type recordingHooks struct {
	mu       sync.Mutex
	stages   []string
	failed   []string
	warnings []string
}

func (h *recordingHooks) OnStageStart(context.Context, string) {}

func (h *recordingHooks) OnStageComplete(_ context.Context, stage string, _ int, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.failed = append(h.failed, stage)
		return
	}
	h.stages = append(h.stages, stage)
}

func (h *recordingHooks) OnWarning(_ context.Context, stage, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.warnings = append(h.warnings, stage)
}

func installHooks(t *testing.T) *recordingHooks {
	t.Helper()
	h := &recordingHooks{}
	observability.SetPipelineHooks(h)
	t.Cleanup(observability.Reset)
	return h
}

func TestExecuteAirway(t *testing.T) {
	hooks := installHooks(t)
	ctx := context.Background()
	dir := t.TempDir()

	sink, err := artifact.NewFS(filepath.Join(dir, "out"))
	require.NoError(t, err)
	st, err := store.Open(ctx, store.DriverSQLite, filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	runner := NewRunner(nil, nil, nil)
	runner.Sink = sink
	runner.Store = st

	res, err := runner.Execute(ctx, offlineOptions())
	require.NoError(t, err)

	assert.Equal(t, "dex_trt_vs_untrt", res.Coefficient)
	assert.Equal(t, "untrt", res.Reference)
	assert.Equal(t, []string{"Intercept", "dex_trt_vs_untrt"}, res.Fit.ResultsNames())

	// Cleaning leaves no missing padj and no duplicated identifiers.
	assert.Zero(t, res.Table.CountMissing())
	ids := map[string]bool{}
	keys := map[string]bool{}
	for _, r := range res.Table.Rows {
		assert.False(t, ids[r.ID], "duplicate id %s", r.ID)
		ids[r.ID] = true
		if r.AltID != "" {
			assert.False(t, keys[r.AltID], "duplicate altId %s", r.AltID)
			keys[r.AltID] = true
		}
	}
	assert.Less(t, res.Table.Len(), 300)

	// The significant genes are a strict subset of the universe.
	sel := res.Selection
	require.NotEmpty(t, sel.Significant)
	assert.Less(t, len(sel.Significant), len(sel.Universe))
	for _, g := range sel.Significant {
		assert.Contains(t, sel.Universe, g)
	}
	assert.Equal(t, len(sel.Significant), res.Stats.Significant)

	require.NotEmpty(t, res.Enrichment.Rows, "the bundle carries a glucocorticoid response set")
	assert.Equal(t, len(res.Enrichment.Rows), res.Stats.Terms)

	var names []string
	for _, s := range res.Stats.Stages {
		names = append(names, s.Name)
	}
	want := []string{"load", "fit", "relevel", "results", "shrink", "map", "clean", "filter", "enrich", "plot", "persist"}
	assert.Equal(t, want, names)
	assert.Equal(t, want, hooks.stages)
	assert.Empty(t, hooks.failed)

	assert.NotEmpty(t, res.Unmapped)
	assert.Contains(t, hooks.warnings, "map")

	for _, name := range []string{"ma.svg", "volcano.svg", "enrichment_dot.svg", "enrichment_bar.svg", "network.svg", "report.html"} {
		assert.Contains(t, res.Artifacts, name)
	}

	stored, err := sink.List(ctx)
	require.NoError(t, err)
	var storedNames []string
	for _, info := range stored {
		storedNames = append(storedNames, info.Name)
	}
	assert.Contains(t, storedNames, FileResultsTSV)
	assert.Contains(t, storedNames, FileResultsJSON)
	assert.Contains(t, storedNames, FileEnrichmentTSV)
	assert.Contains(t, storedNames, "volcano.svg")
	assert.Equal(t, sink.Location(), res.Location)

	saved, err := results.ReadFile(filepath.Join(sink.Location(), FileResultsTSV))
	require.NoError(t, err)
	assert.Equal(t, res.Table.Len(), saved.Len())

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, run.Status)
	assert.Equal(t, res.Stats.Features, run.Features)
	assert.Equal(t, res.Stats.Significant, run.Significant)
	assert.Equal(t, "dex_trt_vs_untrt", run.Coefficient)
	assert.Equal(t, sink.Location(), run.Location)
}

func TestExecuteInvalidLevels(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	runner := NewRunner(nil, nil, nil)
	runner.Store = st

	opts := offlineOptions()
	opts.Reference = ""
	opts.Levels = []string{"untrt"}
	res, err := runner.Execute(ctx, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidLevels))
	assert.True(t, strings.HasPrefix(err.Error(), "relevel: "), err.Error())

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "relevel")
}

func TestExecuteReferenceMustLeadLevels(t *testing.T) {
	opts := offlineOptions()
	opts.Levels = []string{"trt", "untrt"}
	_, err := NewRunner(nil, nil, nil).Execute(context.Background(), opts)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidLevels))
}

func TestExecuteLevelsFlipComparison(t *testing.T) {
	opts := offlineOptions()
	opts.Reference = ""
	opts.Levels = []string{"trt", "untrt"}
	opts.SkipPlots = true
	res, err := NewRunner(nil, nil, nil).Execute(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "dex_untrt_vs_trt", res.Coefficient)
	assert.Equal(t, "trt", res.Reference)
}

func TestExecuteIgnoresAllZeroFeatures(t *testing.T) {
	h := installHooks(t)
	opts := offlineOptions()
	opts.SkipPlots = true
	res, err := NewRunner(nil, nil, nil).Execute(context.Background(), opts)
	require.NoError(t, err)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "did not converge")
	}
	assert.NotContains(t, h.warnings, "fit")
}

func TestExecuteMissingDataset(t *testing.T) {
	opts := offlineOptions()
	opts.Dataset = "builtin:nope"
	_, err := NewRunner(nil, nil, nil).Execute(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDatasetNotFound))
	assert.True(t, strings.HasPrefix(err.Error(), "load: "))
}

type failingMapper struct{}

func (failingMapper) Map(context.Context, []string) (annotation.CrossRef, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestExecuteMappingUnavailable(t *testing.T) {
	hooks := installHooks(t)

	opts := offlineOptions()
	opts.Mapper = &annotation.FallbackMapper{Primary: failingMapper{}}
	opts.SkipPlots = true

	res, err := NewRunner(nil, nil, nil).Execute(context.Background(), opts)
	require.NoError(t, err, "mapping outages do not fail the run")

	assert.True(t, slices.ContainsFunc(res.Warnings, func(w string) bool {
		return strings.HasPrefix(w, "no mapping source available")
	}), res.Warnings)
	for _, r := range res.Table.Rows {
		assert.Empty(t, r.Symbol)
		assert.Empty(t, r.AltID)
	}
	assert.Contains(t, hooks.stages, "enrich")
	assert.Contains(t, hooks.warnings, "map")

	// Without alternate IDs the selection falls back to Ensembl IDs, which
	// match no gene set.
	assert.Empty(t, res.Enrichment.Rows)
	assert.Zero(t, res.Table.CountMissing())
}

func TestExecuteMissingGeneSetFile(t *testing.T) {
	opts := offlineOptions()
	opts.SkipPlots = true
	opts.Enrich.GeneSets = filepath.Join(t.TempDir(), "missing.gmt")
	_, err := NewRunner(nil, nil, nil).Execute(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
	assert.True(t, strings.HasPrefix(err.Error(), "enrich: "))
}

type stubTester struct{ sel results.Selection }

func (s *stubTester) Test(_ context.Context, sel results.Selection) (enrich.Result, error) {
	s.sel = sel
	return enrich.Result{Rows: []enrich.Term{}}, nil
}

func TestExecuteInjectedTester(t *testing.T) {
	tester := &stubTester{}
	opts := offlineOptions()
	opts.Tester = tester
	opts.SkipPlots = true
	opts.Direction = results.Up

	res, err := NewRunner(nil, nil, nil).Execute(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, res.Selection, tester.sel)
	assert.Contains(t, res.Warnings, "no gene set passed the enrichment cutoffs")
	for _, g := range tester.sel.Significant {
		i := slices.IndexFunc(res.Table.Rows, func(r results.Row) bool { return r.AltID == g || r.ID == g })
		require.GreaterOrEqual(t, i, 0)
		assert.Greater(t, res.Table.Rows[i].Log2FoldChange, 0.0)
	}
}

func TestEnrichWithoutGeneSets(t *testing.T) {
	_, err := NewRunner(nil, nil, nil).Enrich(context.Background(), results.Selection{}, DefaultOptions(), nil)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestValidateAndSetDefaults(t *testing.T) {
	var o Options
	require.NoError(t, o.ValidateAndSetDefaults())
	assert.Equal(t, DefaultDataset, o.Dataset)
	assert.Equal(t, DefaultAlpha, o.Alpha)
	assert.Equal(t, results.KeyAltID, o.Key)
	assert.Equal(t, results.Either, o.Direction)
	assert.Equal(t, []render.Format{render.FormatSVG}, o.Formats)
	assert.Equal(t, 10, o.Enrich.MinSize)
	assert.NotNil(t, o.Logger)
	assert.NotNil(t, o.Shrinker)

	tests := []struct {
		name string
		mod  func(*Options)
	}{
		{"alpha", func(o *Options) { o.Alpha = 1.5 }},
		{"shrink", func(o *Options) { o.Shrink = "ashr" }},
		{"mapping source", func(o *Options) { o.Mapping.Source = "ftp" }},
		{"mapping url", func(o *Options) { o.Mapping.URL = "ftp://mart" }},
		{"key", func(o *Options) { o.Key = "gene" }},
		{"direction", func(o *Options) { o.Direction = "sideways" }},
		{"padj", func(o *Options) { o.PAdj = 2 }},
		{"lfc", func(o *Options) { o.Log2FC = -1 }},
		{"set sizes", func(o *Options) { o.Enrich.MinSize, o.Enrich.MaxSize = 50, 10 }},
		{"format", func(o *Options) { o.Formats = []render.Format{"gif"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mod(&o)
			assert.Error(t, o.ValidateAndSetDefaults())
		})
	}
}

func TestRenderEmptyResult(t *testing.T) {
	artifacts, err := Render(context.Background(), &Result{}, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, artifacts, 6)
	for name, data := range artifacts {
		if strings.HasSuffix(name, ".svg") {
			assert.Contains(t, string(data), "no data", name)
		}
	}
	assert.Contains(t, string(artifacts[FileReport]), "<svg")
}

func TestRenderSkipNetwork(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipNetwork = true
	artifacts, err := Render(context.Background(), &Result{}, opts)
	require.NoError(t, err)
	assert.NotContains(t, artifacts, "network.svg")
	assert.Len(t, artifacts, 5)
}

func TestSymbolLabels(t *testing.T) {
	tbl := results.Table{Rows: []results.Row{
		{ID: "ENSG1", AltID: "100", Symbol: "A"},
		{ID: "ENSG2", Symbol: "B"},
		{ID: "ENSG3", AltID: "300"},
	}}
	assert.Equal(t, map[string]string{"100": "A", "ENSG2": "B"}, symbolLabels(tbl, results.KeyAltID))
	assert.Equal(t, map[string]string{"A": "A", "B": "B"}, symbolLabels(tbl, results.KeySymbol))
}

func TestPersist(t *testing.T) {
	ctx := context.Background()
	sink, err := artifact.NewFS(t.TempDir())
	require.NoError(t, err)

	res := &Result{
		Table:     results.Table{Coefficient: "dex_trt_vs_untrt", Rows: []results.Row{{ID: "ENSG1", BaseMean: 10, PAdj: 0.01}}},
		Artifacts: map[string][]byte{"volcano.svg": []byte("<svg/>"), "ma.svg": []byte("<svg/>")},
	}
	written, err := Persist(ctx, sink, res)
	require.NoError(t, err)

	var names []string
	for _, info := range written {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{FileResultsTSV, FileResultsJSON, FileEnrichmentTSV, "ma.svg", "volcano.svg"}, names)

	data, err := sink.Get(ctx, "volcano.svg")
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
}
