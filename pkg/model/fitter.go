package model

import (
	"context"
	"io"
	"math"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// NegBinFitter fits a negative-binomial GLM per feature.
type NegBinFitter struct {
	MaxIter int
	Tol     float64
	MinMu   float64
	Ridge   float64
	Logger  *log.Logger
}

// NewNegBinFitter returns a fitter with the default settings.
func NewNegBinFitter() NegBinFitter {
	return NegBinFitter{MaxIter: 100, Tol: 1e-8, MinMu: 0.5, Ridge: 1e-6}
}

func (o NegBinFitter) withDefaults() NegBinFitter {
	def := NewNegBinFitter()
	if o.MaxIter <= 0 {
		o.MaxIter = def.MaxIter
	}
	if o.Tol <= 0 {
		o.Tol = def.Tol
	}
	if o.MinMu <= 0 {
		o.MinMu = def.MinMu
	}
	if o.Ridge < 0 {
		o.Ridge = 0
	} else if o.Ridge == 0 {
		o.Ridge = def.Ridge
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Fit estimates size factors and dispersions, then fits every feature.
// Features with only zero counts get a zero base mean and NaN estimates.
// The returned Fit holds copies of the design's counts and samples.
func (o NegBinFitter) Fit(ctx context.Context, d Design) (*Fit, error) {
	o = o.withDefaults()
	if d.Counts == nil || d.Counts.NumFeatures() == 0 {
		return nil, errors.New(errors.ErrCodeFitFailed, "no features to fit")
	}

	x, names := d.Matrix()
	n, p := x.Dims()
	if n <= p {
		return nil, errors.New(errors.ErrCodeFitFailed, "%d samples cannot identify %d coefficients", n, p)
	}

	sf, err := SizeFactors(d.Counts)
	if err != nil {
		return nil, err
	}
	norm := Normalized(d.Counts, sf)
	baseMean := BaseMeans(norm)

	gene := geneDispersions(norm, baseMean, x)
	trend := fitTrend(gene, baseMean)
	disp := finalDispersions(gene, baseMean, trend)
	o.Logger.Debug("dispersion trend", "asymptote", trend.Asymptote, "extra", trend.Extra)

	offset := make([]float64, n)
	for j, s := range sf {
		offset[j] = math.Log(s)
	}

	nf := d.Counts.NumFeatures()
	fit := &Fit{
		Design:       d,
		Counts:       d.Counts.Clone(),
		Samples:      d.Samples.Clone(),
		SizeFactors:  sf,
		Dispersions:  disp,
		Trend:        trend,
		BaseMean:     baseMean,
		Coefficients: make([][]float64, nf),
		StdErrors:    make([][]float64, nf),
		CoefNames:    names,
		Converged:    make([]bool, nf),
	}

	y := make([]float64, n)
	for i, row := range d.Counts.Counts {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if baseMean[i] == 0 {
			fit.Coefficients[i] = nanSlice(p)
			fit.StdErrors[i] = nanSlice(p)
			continue
		}
		for j, c := range row {
			y[j] = float64(c)
		}
		g := fitGene(y, x, offset, disp[i], o)
		fit.Coefficients[i] = make([]float64, p)
		fit.StdErrors[i] = make([]float64, p)
		for k := 0; k < p; k++ {
			fit.Coefficients[i][k] = g.beta[k] / math.Ln2
			fit.StdErrors[i][k] = g.se[k] / math.Ln2
		}
		fit.Converged[i] = g.converged
	}

	if c := fit.NumConverged(); c == 0 {
		return nil, errors.New(errors.ErrCodeFitFailed, "no feature converged")
	} else if nz := fit.NumTested(); c < nz {
		o.Logger.Warn("some features did not converge", "count", nz-c, "of", nz)
	}
	return fit, nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func countPositive(xs []float64) int {
	n := 0
	for _, x := range xs {
		if x > 0 {
			n++
		}
	}
	return n
}
