// Package model fits negative-binomial GLMs to RNA-seq counts and turns
// the fit into per-feature result tables.
//
// The fitting procedure follows the usual DE workflow: median-of-ratios
// size factors, moment dispersion estimates pulled up to a parametric
// mean-dispersion trend, an IRLS fit of log(mu) = offset + X*beta per
// feature, and Wald tests. Coefficients are reported on the log2 scale.
//
//	d, _ := model.NewDesign(b.Counts, samples, "~ dex")
//	fit, _ := model.NewNegBinFitter().Fit(ctx, d)
//	tbl, _ := fit.Results("dex_trt_vs_untrt", model.DefaultResultsOptions())
package model

import (
	"context"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/matzehuels/exprflow/pkg/dataset"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/stats"
)

// Fitter fits a model to a design.
type Fitter interface {
	Fit(ctx context.Context, d Design) (*Fit, error)
}

// Fit is an immutable fitted model. Fields may be read directly; the
// accessor methods are the stable interface.
type Fit struct {
	Design  Design
	Counts  *dataset.CountMatrix
	Samples dataset.SampleTable

	SizeFactors []float64
	Dispersions []float64
	Trend       Trend
	BaseMean    []float64

	// Coefficients and StdErrors are features x coefficients, log2 scale.
	Coefficients [][]float64
	StdErrors    [][]float64
	CoefNames    []string
	Converged    []bool
}

// ResultsNames lists the coefficient names, intercept first.
func (f *Fit) ResultsNames() []string { return slices.Clone(f.CoefNames) }

// SizeFactor returns the size factor of sample.
func (f *Fit) SizeFactor(sample string) (float64, bool) {
	i := slices.Index(f.Counts.Samples, sample)
	if i < 0 {
		return 0, false
	}
	return f.SizeFactors[i], true
}

// Dispersion returns the final dispersion of feature.
func (f *Fit) Dispersion(feature string) (float64, bool) {
	i := slices.Index(f.Counts.Features, feature)
	if i < 0 {
		return 0, false
	}
	return f.Dispersions[i], true
}

// NumConverged counts features whose IRLS fit converged.
func (f *Fit) NumConverged() int {
	n := 0
	for _, ok := range f.Converged {
		if ok {
			n++
		}
	}
	return n
}

// NumTested counts features with a positive base mean. All-zero features
// are never fitted.
func (f *Fit) NumTested() int {
	return countPositive(f.BaseMean)
}

// ResultsOptions controls p-value adjustment.
type ResultsOptions struct {
	Alpha                float64
	IndependentFiltering bool
}

// DefaultResultsOptions returns alpha 0.1 with independent filtering.
func DefaultResultsOptions() ResultsOptions {
	return ResultsOptions{Alpha: 0.1, IndependentFiltering: true}
}

// Results returns the Wald test table for coefficient name. An empty name
// selects the last coefficient, the variable of interest's last level.
func (f *Fit) Results(name string, opts ResultsOptions) (results.Table, error) {
	if name == "" {
		name = f.CoefNames[len(f.CoefNames)-1]
	}
	k := slices.Index(f.CoefNames, name)
	if k < 0 {
		return results.Table{}, errors.New(errors.ErrCodeInvalidInput, "unknown coefficient %q (have %v)", name, f.CoefNames)
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		opts.Alpha = 0.1
	}

	n := len(f.Counts.Features)
	rows := make([]results.Row, n)
	pvals := make([]float64, n)
	for i := range rows {
		lfc, se := f.Coefficients[i][k], f.StdErrors[i][k]
		stat := lfc / se
		p := waldP(stat)
		rows[i] = results.Row{
			ID:             f.Counts.Features[i],
			BaseMean:       f.BaseMean[i],
			Log2FoldChange: lfc,
			LfcSE:          se,
			Stat:           stat,
			PValue:         p,
		}
		pvals[i] = p
	}

	var padj []float64
	if opts.IndependentFiltering {
		padj, _ = independentFiltering(pvals, f.BaseMean, opts.Alpha)
	} else {
		padj = stats.AdjustBH(pvals)
	}
	for i := range rows {
		rows[i].PAdj = padj[i]
	}
	return results.Table{Coefficient: name, Rows: rows}, nil
}

func waldP(z float64) float64 {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return math.NaN()
	}
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}
