package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/exprflow/pkg/annotation"
	"github.com/matzehuels/exprflow/pkg/artifact"
	"github.com/matzehuels/exprflow/pkg/cache"
	"github.com/matzehuels/exprflow/pkg/dataset"
	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/integrations/biomart"
	"github.com/matzehuels/exprflow/pkg/model"
	"github.com/matzehuels/exprflow/pkg/observability"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/store"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for its collaborators - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Sink receives the persisted artifacts. Nil skips the persist stage.
	Sink artifact.Sink

	// Store records runs. Nil discards them.
	Store store.Store
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
		Store:  store.Nop{},
	}
}

// Execute runs every stage in order. A fatal error stops the run; the run
// record in the store is then marked failed.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	st := r.Store
	if st == nil {
		st = store.Nop{}
	}

	run := &store.Run{Dataset: opts.Dataset, Reference: opts.Reference, Coefficient: opts.Coefficient}
	if err := st.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	logger := opts.Logger.With("run", shortID(run.ID))
	opts.Logger = logger

	start := time.Now()
	result := &Result{
		RunID:     run.ID,
		Artifacts: make(map[string][]byte),
	}
	err := r.execute(ctx, opts, result)
	result.Stats.Total = time.Since(start)

	run.Coefficient = result.Coefficient
	run.Reference = result.Reference
	run.Features = result.Stats.Features
	run.Significant = result.Stats.Significant
	run.Terms = result.Stats.Terms
	run.Location = result.Location
	if err != nil {
		run.Status = store.StatusFailed
		run.Error = err.Error()
	} else {
		run.Status = store.StatusSucceeded
	}
	// The run record must survive a cancelled context.
	if ferr := st.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		logger.Warn("could not record run", "err", ferr)
	}

	if err != nil {
		return result, err
	}
	logger.Info("pipeline complete",
		"features", result.Stats.Features,
		"significant", result.Stats.Significant,
		"terms", result.Stats.Terms,
		"warnings", len(result.Warnings),
		"duration", result.Stats.Total)
	return result, nil
}

func (r *Runner) execute(ctx context.Context, opts Options, result *Result) error {
	logger := opts.Logger

	// Stage 1: Load
	var b *dataset.Bundle
	d, err := r.stage(ctx, result, "load", func() (int, error) {
		var err error
		b, err = dataset.Load(ctx, opts.Dataset, dataset.WithLogger(logger))
		if err != nil {
			return 0, err
		}
		return b.Counts.NumFeatures(), nil
	})
	if err != nil {
		return err
	}
	result.Bundle = b
	logger.Info("loaded dataset",
		"name", b.Manifest.Name,
		"features", b.Counts.NumFeatures(),
		"samples", b.Counts.NumSamples(),
		"duration", d)

	fitter := r.fitter(opts)

	// Stage 2: Fit
	var fit *model.Fit
	d, err = r.stage(ctx, result, "fit", func() (int, error) {
		design, err := model.NewDesign(b.Counts, b.Samples, b.Manifest.Design)
		if err != nil {
			return 0, err
		}
		fit, err = fitter.Fit(ctx, design)
		if err != nil {
			return 0, err
		}
		return fit.NumConverged(), nil
	})
	if err != nil {
		return err
	}
	logger.Info("fitted model",
		"design", b.Manifest.Design,
		"coefficients", fit.ResultsNames(),
		"duration", d)

	// Stage 3: Relevel and fit again
	d, err = r.stage(ctx, result, "relevel", func() (int, error) {
		samples, ref, err := relevel(b, opts)
		if err != nil {
			return 0, err
		}
		result.Reference = ref
		design, err := model.NewDesign(b.Counts, samples, b.Manifest.Design)
		if err != nil {
			return 0, err
		}
		fit, err = fitter.Fit(ctx, design)
		if err != nil {
			return 0, err
		}
		return fit.NumConverged(), nil
	})
	if err != nil {
		return err
	}
	result.Fit = fit
	result.Stats.Converged = fit.NumConverged()
	logger.Info("refitted model",
		"reference", result.Reference,
		"coefficients", fit.ResultsNames(),
		"duration", d)
	if n := fit.NumTested() - fit.NumConverged(); n > 0 {
		warn(ctx, logger, result, "fit", fmt.Sprintf("%d features did not converge", n))
	}

	// Stage 4: Results
	var table results.Table
	_, err = r.stage(ctx, result, "results", func() (int, error) {
		var err error
		table, err = fit.Results(opts.Coefficient, model.ResultsOptions{
			Alpha:                opts.Alpha,
			IndependentFiltering: !opts.SkipIndependentFiltering,
		})
		return table.Len(), err
	})
	if err != nil {
		return err
	}
	result.Coefficient = table.Coefficient
	result.Summary = results.Summarize(table, opts.Alpha)
	logger.Info("tested coefficient",
		"coefficient", table.Coefficient,
		"up", result.Summary.Up,
		"down", result.Summary.Down,
		"missing_padj", result.Summary.MissingAdj)

	// Stage 5: Shrink
	_, err = r.stage(ctx, result, "shrink", func() (int, error) {
		var err error
		table, err = opts.Shrinker.Shrink(ctx, table)
		return table.Len(), err
	})
	if err != nil {
		return err
	}
	logger.Debug("shrunk fold changes", "method", opts.Shrink)

	// Stage 6: Map
	_, err = r.stage(ctx, result, "map", func() (int, error) {
		mapped, err := r.Annotate(ctx, table, opts, b)
		if err != nil {
			if errors.IsFatal(err) {
				return 0, err
			}
			// FallbackMapper already reported this to the hooks.
			result.Warnings = append(result.Warnings, errors.UserMessage(err))
			logger.Warn("continuing without identifier mapping", "err", errors.UserMessage(err))
		}
		table = mapped
		result.Unmapped = annotation.Unmapped(table)
		return table.Len() - len(result.Unmapped), nil
	})
	if err != nil {
		return err
	}
	if n := len(result.Unmapped); n > 0 && n < table.Len() {
		warn(ctx, logger, result, "map", fmt.Sprintf("%d of %d identifiers have no mapping", n, table.Len()))
	}

	// Stage 7: Clean
	_, err = r.stage(ctx, result, "clean", func() (int, error) {
		before := table.Len()
		table = results.Clean(table, opts.CleanOptions())
		logger.Info("cleaned results", "kept", table.Len(), "dropped", before-table.Len(), "key", opts.Key)
		return table.Len(), nil
	})
	if err != nil {
		return err
	}
	result.Table = table
	result.Stats.Features = table.Len()

	// Stage 8: Filter
	_, err = r.stage(ctx, result, "filter", func() (int, error) {
		result.Selection = results.Filter(table, opts.Thresholds())
		return len(result.Selection.Significant), nil
	})
	if err != nil {
		return err
	}
	result.Stats.Significant = len(result.Selection.Significant)
	logger.Info("selected significant genes",
		"significant", len(result.Selection.Significant),
		"universe", len(result.Selection.Universe),
		"padj", opts.PAdj,
		"lfc", opts.Log2FC,
		"direction", opts.Direction)

	// Stage 9: Enrich
	skipped := false
	d, err = r.stage(ctx, result, "enrich", func() (int, error) {
		e, err := r.Enrich(ctx, result.Selection, opts, b)
		if errors.Is(err, errors.ErrCodeNotFound) {
			skipped = true
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		result.Enrichment = e
		return len(e.Rows), nil
	})
	if err != nil {
		return err
	}
	result.Stats.Terms = len(result.Enrichment.Rows)
	switch {
	case skipped:
		warn(ctx, logger, result, "enrich", "no gene sets available; enrichment skipped")
	case len(result.Enrichment.Rows) == 0:
		warn(ctx, logger, result, "enrich", "no gene set passed the enrichment cutoffs")
	default:
		logger.Info("tested enrichment",
			"terms", len(result.Enrichment.Rows),
			"tested", result.Enrichment.Tested,
			"duration", d)
	}

	// Stage 10: Plot
	if !opts.SkipPlots {
		d, err = r.stage(ctx, result, "plot", func() (int, error) {
			artifacts, err := Render(ctx, result, opts)
			if err != nil {
				return 0, err
			}
			result.Artifacts = artifacts
			return len(artifacts), nil
		})
		if err != nil {
			return err
		}
		logger.Info("rendered plots", "formats", opts.Formats, "files", len(result.Artifacts), "duration", d)
	}

	// Stage 11: Persist
	if r.Sink != nil {
		d, err = r.stage(ctx, result, "persist", func() (int, error) {
			written, err := Persist(ctx, r.Sink, result)
			return len(written), err
		})
		if err != nil {
			return err
		}
		result.Location = r.Sink.Location()
		logger.Info("wrote artifacts", "location", result.Location, "duration", d)
	}
	return nil
}

// stage runs fn as the named stage: it reports to the pipeline hooks,
// records timing and wraps errors with the stage name.
func (r *Runner) stage(ctx context.Context, result *Result, name string, fn func() (int, error)) (time.Duration, error) {
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, name)
	start := time.Now()

	items, err := fn()
	if err == nil {
		err = ctx.Err()
	}

	d := time.Since(start)
	hooks.OnStageComplete(ctx, name, items, d, err)
	if err != nil {
		return d, fmt.Errorf("%s: %w", name, err)
	}
	result.Stats.Stages = append(result.Stats.Stages, StageStat{Name: name, Items: items, Duration: d})
	return d, nil
}

func warn(ctx context.Context, logger *log.Logger, result *Result, stage, msg string) {
	result.Warnings = append(result.Warnings, msg)
	observability.Pipeline().OnWarning(ctx, stage, msg)
	logger.Warn(msg, "stage", stage)
}

// relevel returns the sample table with the reference level of the
// condition first. Explicit levels win over a reference; without either
// the manifest reference is used, then the current first level.
func relevel(b *dataset.Bundle, opts Options) (dataset.SampleTable, string, error) {
	cond := b.Manifest.Condition
	if len(opts.Levels) > 0 {
		if opts.Reference != "" && opts.Reference != opts.Levels[0] {
			return dataset.SampleTable{}, "", errors.New(errors.ErrCodeInvalidLevels,
				"reference %q is not the first of levels %v", opts.Reference, opts.Levels)
		}
		samples, err := dataset.Relevel(b.Samples, cond, opts.Levels)
		if err != nil {
			return dataset.SampleTable{}, "", err
		}
		return samples, opts.Levels[0], nil
	}

	ref := opts.Reference
	if ref == "" {
		ref = b.Manifest.Reference
	}
	if ref == "" {
		f, ok := b.Samples.Factor(cond)
		if !ok {
			return dataset.SampleTable{}, "", errors.New(errors.ErrCodeInvalidLevels, "unknown column %q", cond)
		}
		ref = f.Reference()
	}
	samples, err := dataset.RelevelReference(b.Samples, cond, ref)
	if err != nil {
		return dataset.SampleTable{}, "", err
	}
	return samples, ref, nil
}

func (r *Runner) fitter(opts Options) model.Fitter {
	if opts.Fitter != nil {
		return opts.Fitter
	}
	f := model.NewNegBinFitter()
	if opts.MaxIter > 0 {
		f.MaxIter = opts.MaxIter
	}
	f.Logger = opts.Logger
	return f
}

// Annotate maps the table IDs and joins symbols and alternate IDs. When no
// mapping source answers, it returns the table unchanged together with a
// non-fatal ErrCodeMappingUnavailable error. b may be nil for saved tables.
func (r *Runner) Annotate(ctx context.Context, t results.Table, opts Options, b *dataset.Bundle) (results.Table, error) {
	x, err := r.Lookup(ctx, t.IDs(), opts, b)
	if err != nil && errors.IsFatal(err) {
		return t, err
	}
	return annotation.Join(t, x), err
}

// Lookup resolves ids through the configured mapping source. Errors follow
// Annotate.
func (r *Runner) Lookup(ctx context.Context, ids []string, opts Options, b *dataset.Bundle) (annotation.CrossRef, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	m, err := r.mapper(opts, b)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "mapping")
	}
	return m.Map(ctx, ids)
}

func (r *Runner) mapper(opts Options, b *dataset.Bundle) (annotation.Mapper, error) {
	if opts.Mapper != nil {
		return opts.Mapper, nil
	}

	cfg := annotation.Config{
		Source:  annotation.Source(opts.Mapping.Source),
		Refresh: opts.Refresh,
		Logger:  opts.Logger,
	}
	switch {
	case opts.Mapping.File != "":
		path := opts.Mapping.File
		cfg.FileName = path
		cfg.File = func() (io.ReadCloser, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "mapping file")
			}
			return f, nil
		}
	case b != nil && b.HasMapping():
		cfg.FileName = b.Manifest.Mapping
		cfg.File = b.OpenMapping
	}

	if cfg.Source != annotation.SourceFile && cfg.Source != annotation.SourceNone {
		ds := opts.Mapping.Dataset
		if ds == "" && b != nil && b.Manifest.Organism != "" {
			ds = b.Manifest.Organism + "_gene_ensembl"
		}
		cfg.Remote = biomart.NewClient(r.Cache, biomart.Options{
			URL:       opts.Mapping.URL,
			Dataset:   ds,
			Timeout:   opts.Mapping.Timeout,
			Rate:      opts.Mapping.Rate,
			BatchSize: opts.Mapping.BatchSize,
			TTL:       opts.Mapping.TTL,
			Keyer:     r.Keyer,
		})
	}
	return annotation.NewMapper(cfg)
}

// GeneSets resolves the gene-set collection: an explicit URL or file in
// opts first, then the bundle's GMT. It fails with ErrCodeNotFound when
// neither is available.
func (r *Runner) GeneSets(ctx context.Context, opts Options, b *dataset.Bundle) (enrich.GeneSets, error) {
	src := opts.Enrich.GeneSets
	switch {
	case enrich.IsRemote(src):
		return enrich.FetchGMT(ctx, r.Cache, src, opts.Refresh)
	case src != "":
		return enrich.ReadGMTFile(src)
	case b != nil && b.HasGeneSets():
		rc, err := b.OpenGeneSets()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return enrich.ReadGMT(rc)
	}
	return nil, errors.New(errors.ErrCodeNotFound, "no gene sets configured")
}

// Enrich runs the over-representation test on sel. opts.Tester replaces
// the ORA built from GeneSets.
func (r *Runner) Enrich(ctx context.Context, sel results.Selection, opts Options, b *dataset.Bundle) (enrich.Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return enrich.Result{}, err
	}
	tester := opts.Tester
	if tester == nil {
		sets, err := r.GeneSets(ctx, opts, b)
		if err != nil {
			return enrich.Result{}, err
		}
		ora := enrich.NewORA(sets)
		ora.MinSize = opts.Enrich.MinSize
		ora.MaxSize = opts.Enrich.MaxSize
		ora.PValueCutoff = opts.Enrich.PValueCutoff
		ora.PAdjCutoff = opts.Enrich.PAdjCutoff
		tester = ora
		opts.Logger.Debug("loaded gene sets", "sets", len(sets))
	}
	return tester.Test(ctx, sel)
}

// Close releases resources held by the runner (the cache and the store).
func (r *Runner) Close() error {
	var err error
	if r.Store != nil {
		err = r.Store.Close()
	}
	if r.Cache != nil {
		if cerr := r.Cache.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
