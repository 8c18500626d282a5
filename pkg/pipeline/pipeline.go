// Package pipeline runs the differential-expression analysis end to end.
//
// This package implements the complete load → fit → test → annotate →
// enrich → plot sequence that the CLI subcommands share. By centralizing
// this logic, every entry point applies the same defaults and the same
// stage order.
//
// # Architecture
//
// The pipeline is a fixed, linear list of stages:
//
//  1. Load: read a count matrix, sample table and manifest
//  2. Fit: fit the negative binomial GLM of the manifest design
//  3. Relevel: move the reference level to the front and fit again
//  4. Results: Wald test table for the chosen coefficient
//  5. Shrink: moderate the fold changes
//  6. Map: attach gene symbols and alternate IDs
//  7. Clean: drop rows without padj and deduplicate by key
//  8. Filter: split significant genes from the universe
//  9. Enrich: over-representation test against gene sets
//  10. Plot: render SVG figures, an HTML report and optional PNG/PDF
//  11. Persist: write tables and figures and record the run
//
// Each stage reports to the observability hooks and fails with its name as
// context ("fit: ..."). Mapping outages are the one non-fatal failure: they
// are collected in [Result.Warnings] and the run continues unmapped.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	runner.Sink, _ = artifact.NewFS("out")
//	opts := pipeline.DefaultOptions()
//	opts.Dataset = "builtin:airway-mini"
//	opts.Reference = "untrt"
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(result.Selection.Significant))
//
// The later stages can also run on a saved table:
//
//	t, err := runner.Annotate(ctx, table, opts, nil)
//	e, err := runner.Enrich(ctx, results.Filter(t, opts.Thresholds()), opts, nil)
//	artifacts, err := pipeline.Render(ctx, &pipeline.Result{Table: t, Enrichment: e}, opts)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/exprflow/pkg/annotation"
	"github.com/matzehuels/exprflow/pkg/dataset"
	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/integrations/biomart"
	"github.com/matzehuels/exprflow/pkg/model"
	"github.com/matzehuels/exprflow/pkg/plot"
	"github.com/matzehuels/exprflow/pkg/render"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/shrink"
)

// =============================================================================
// Default Values - Single Source of Truth for the CLI and config layer
// =============================================================================

const (
	// DefaultDataset is the bundle analysed when none is given.
	DefaultDataset = dataset.BuiltinPrefix + "airway-mini"

	// DefaultAlpha is the FDR target of independent filtering.
	DefaultAlpha = 0.1

	// DefaultShrink is the fold-change shrinkage method.
	DefaultShrink = "normal"

	// DefaultMappingSource tries BioMart first and the offline file second.
	DefaultMappingSource = string(annotation.SourceAuto)

	// DefaultTopN is the number of enriched terms drawn in plots.
	DefaultTopN = 20

	// DefaultNetworkTopN is the number of terms drawn in the gene network.
	DefaultNetworkTopN = 5
)

// Artifact names written by [Persist].
const (
	FileResultsTSV    = "results.tsv"
	FileResultsJSON   = "results.json"
	FileEnrichmentTSV = "enrichment.tsv"
	FileReport        = "report.html"
)

// Figure names; each is written as <name>.<format>.
const (
	FigureMA            = "ma"
	FigureVolcano       = "volcano"
	FigureEnrichmentDot = "enrichment_dot"
	FigureEnrichmentBar = "enrichment_bar"
	FigureNetwork       = "network"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a pipeline run.
// This struct supports JSON serialization so runs can be described in files.
type Options struct {
	// Load options
	Dataset string `json:"dataset"`

	// Model options
	Reference                string   `json:"reference,omitempty"`   // Control level of the manifest condition
	Levels                   []string `json:"levels,omitempty"`      // Full level order; first is the reference
	Coefficient              string   `json:"coefficient,omitempty"` // Empty selects the last coefficient
	Alpha                    float64  `json:"alpha,omitempty"`
	SkipIndependentFiltering bool     `json:"skip_independent_filtering,omitempty"`
	MaxIter                  int      `json:"max_iter,omitempty"`
	Shrink                   string   `json:"shrink,omitempty"`

	// Annotation options
	Mapping MappingOptions `json:"mapping"`
	Refresh bool           `json:"refresh,omitempty"` // Bypass cached mappings and gene sets

	// Clean and filter options
	Key            results.Key       `json:"key,omitempty"`
	DropMissingKey bool              `json:"drop_missing_key,omitempty"`
	PAdj           float64           `json:"padj,omitempty"`
	Log2FC         float64           `json:"lfc"`
	Direction      results.Direction `json:"direction,omitempty"`

	// Enrichment options
	Enrich EnrichOptions `json:"enrich"`

	// Plot options
	Formats     []render.Format `json:"formats,omitempty"`
	Width       int             `json:"width,omitempty"`
	Height      int             `json:"height,omitempty"`
	SkipPlots   bool            `json:"skip_plots,omitempty"`
	SkipNetwork bool            `json:"skip_network,omitempty"`

	// Runtime options (not serialized)
	Logger   *log.Logger       `json:"-"`
	Fitter   model.Fitter      `json:"-"`
	Shrinker shrink.Shrinker   `json:"-"`
	Mapper   annotation.Mapper `json:"-"`
	Tester   enrich.Tester     `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// MappingOptions selects and tunes the identifier mapper.
type MappingOptions struct {
	Source    string        `json:"source,omitempty"`  // auto, remote, file or none
	URL       string        `json:"url,omitempty"`     // BioMart martservice endpoint
	Dataset   string        `json:"dataset,omitempty"` // BioMart dataset; derived from the organism when empty
	File      string        `json:"file,omitempty"`    // Offline mapping TSV; the bundle's when empty
	Timeout   time.Duration `json:"timeout,omitempty"`
	Rate      float64       `json:"rate,omitempty"`
	BatchSize int           `json:"batch_size,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty"` // Cache lifetime of mapping responses
}

// EnrichOptions configures the over-representation test.
type EnrichOptions struct {
	GeneSets     string  `json:"genesets,omitempty"` // GMT path or URL; the bundle's when empty
	MinSize      int     `json:"min_size,omitempty"`
	MaxSize      int     `json:"max_size,omitempty"`
	PValueCutoff float64 `json:"pvalue_cutoff,omitempty"`
	PAdjCutoff   float64 `json:"padj_cutoff,omitempty"`
	TopN         int     `json:"top,omitempty"`
}

// DefaultOptions returns the options of a plain `exprflow run`.
func DefaultOptions() Options {
	th := results.DefaultThresholds()
	ora := enrich.NewORA(nil)
	return Options{
		Dataset: DefaultDataset,
		Alpha:   DefaultAlpha,
		Shrink:  DefaultShrink,
		Mapping: MappingOptions{
			Source: DefaultMappingSource,
			URL:    biomart.DefaultURL,
		},
		Key:       th.Key,
		PAdj:      th.PAdj,
		Log2FC:    th.Log2FC,
		Direction: th.Direction,
		Enrich: EnrichOptions{
			MinSize:      ora.MinSize,
			MaxSize:      ora.MaxSize,
			PValueCutoff: ora.PValueCutoff,
			PAdjCutoff:   ora.PAdjCutoff,
			TopN:         DefaultTopN,
		},
		Formats: []render.Format{render.FormatSVG},
	}
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID identifies the run in the store and in logs.
	RunID string

	// Bundle is the loaded dataset.
	Bundle *dataset.Bundle

	// Fit is the model fitted after releveling.
	Fit *model.Fit

	// Coefficient and Reference name the comparison that was tested.
	Coefficient string
	Reference   string

	// Table is the shrunk, annotated and cleaned result table.
	Table results.Table

	// Summary counts the table before cleaning.
	Summary results.Summary

	// Selection is the significant subset and universe handed to Enrich.
	Selection results.Selection

	// Enrichment is the over-representation result; empty when no gene
	// sets are available.
	Enrichment enrich.Result

	// Unmapped lists table IDs without a symbol or alternate ID.
	Unmapped []string

	// Warnings are non-fatal problems encountered during the run.
	Warnings []string

	// Artifacts contains rendered outputs keyed by file name.
	Artifacts map[string][]byte

	// Location is where Persist wrote the artifacts.
	Location string

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Features    int
	Converged   int
	Significant int
	Terms       int
	Stages      []StageStat
	Total       time.Duration
}

// StageStat is the outcome of one stage.
type StageStat struct {
	Name     string
	Items    int
	Duration time.Duration
}

// Stage returns the stats of the named stage.
func (s Stats) Stage(name string) (StageStat, bool) {
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return StageStat{}, false
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks option values and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}

	if o.Dataset == "" {
		o.Dataset = DefaultDataset
	}

	if o.Alpha == 0 {
		o.Alpha = DefaultAlpha
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		return errors.New(errors.ErrCodeInvalidInput, "alpha must be in (0, 1), got %g", o.Alpha)
	}
	if o.Shrink == "" {
		o.Shrink = DefaultShrink
	}
	if o.Shrinker == nil {
		s, err := shrink.New(o.Shrink)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "shrink")
		}
		o.Shrinker = s
	}

	if o.Mapping.Source == "" {
		o.Mapping.Source = DefaultMappingSource
	}
	switch annotation.Source(o.Mapping.Source) {
	case annotation.SourceAuto, annotation.SourceRemote, annotation.SourceFile, annotation.SourceNone:
	default:
		return errors.New(errors.ErrCodeInvalidInput,
			"unknown mapping source %q (want auto, remote, file or none)", o.Mapping.Source)
	}
	if o.Mapping.URL != "" {
		if err := errors.ValidateURL(o.Mapping.URL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "mapping url")
		}
	}

	key, err := results.ParseKey(string(o.Key))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "key")
	}
	o.Key = key
	dir, err := results.ParseDirection(string(o.Direction))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "direction")
	}
	o.Direction = dir
	if o.PAdj == 0 {
		o.PAdj = results.DefaultThresholds().PAdj
	}
	if o.PAdj < 0 || o.PAdj > 1 {
		return errors.New(errors.ErrCodeInvalidInput, "padj threshold must be in (0, 1], got %g", o.PAdj)
	}
	if o.Log2FC < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "lfc threshold must not be negative, got %g", o.Log2FC)
	}

	o.setEnrichDefaults()
	if o.Enrich.MaxSize > 0 && o.Enrich.MinSize > o.Enrich.MaxSize {
		return errors.New(errors.ErrCodeInvalidInput,
			"enrich min size %d exceeds max size %d", o.Enrich.MinSize, o.Enrich.MaxSize)
	}

	if len(o.Formats) == 0 {
		o.Formats = []render.Format{render.FormatSVG}
	}
	for _, f := range o.Formats {
		if _, err := render.ParseFormats(string(f)); err != nil {
			return err
		}
	}

	// Logger default
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}

func (o *Options) setEnrichDefaults() {
	def := enrich.NewORA(nil)
	if o.Enrich.MinSize == 0 {
		o.Enrich.MinSize = def.MinSize
	}
	if o.Enrich.MaxSize == 0 {
		o.Enrich.MaxSize = def.MaxSize
	}
	if o.Enrich.PValueCutoff == 0 {
		o.Enrich.PValueCutoff = def.PValueCutoff
	}
	if o.Enrich.PAdjCutoff == 0 {
		o.Enrich.PAdjCutoff = def.PAdjCutoff
	}
	if o.Enrich.TopN == 0 {
		o.Enrich.TopN = DefaultTopN
	}
}

// Thresholds returns the significance cutoffs of the filter stage.
func (o Options) Thresholds() results.Thresholds {
	return results.Thresholds{PAdj: o.PAdj, Log2FC: o.Log2FC, Direction: o.Direction, Key: o.Key}
}

// CleanOptions returns the options of the clean stage.
func (o Options) CleanOptions() results.CleanOptions {
	return results.CleanOptions{Key: o.Key, DropMissingKey: o.DropMissingKey}
}

// PlotOptions returns the options shared by the SVG renderers.
func (o Options) PlotOptions() plot.Options {
	return plot.Options{
		Width:  o.Width,
		Height: o.Height,
		PAdj:   o.PAdj,
		Log2FC: o.Log2FC,
		TopN:   o.Enrich.TopN,
	}
}
