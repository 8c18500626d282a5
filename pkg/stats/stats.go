// Package stats holds the small numeric helpers shared by the model,
// shrinkage and enrichment packages: Benjamini-Hochberg adjustment,
// NaN-aware quantiles and medians, and hypergeometric tails.
package stats

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/combin"
)

// AdjustBH returns Benjamini-Hochberg adjusted p-values. NaN inputs stay
// NaN and do not count towards the number of tests.
func AdjustBH(p []float64) []float64 {
	out := make([]float64, len(p))
	idx := make([]int, 0, len(p))
	for i, v := range p {
		out[i] = math.NaN()
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	m := len(idx)
	if m == 0 {
		return out
	}

	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

	running := 1.0
	for rank := m; rank >= 1; rank-- {
		i := idx[rank-1]
		v := p[i] * float64(m) / float64(rank)
		running = math.Min(running, v)
		out[i] = math.Min(running, 1)
	}
	return out
}

// Finite returns the non-NaN, non-Inf values of xs.
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// Quantile returns the p-quantile of the finite values of xs using
// linear interpolation between order statistics. It returns NaN when no
// finite value exists.
func Quantile(p float64, xs []float64) float64 {
	v := Finite(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	slices.Sort(v)
	return stat.Quantile(p, stat.LinInterp, v, nil)
}

// Median returns the median of the finite values of xs.
func Median(xs []float64) float64 {
	v := Finite(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	slices.Sort(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}

// HypergeomUpper returns P[X >= k] for X ~ Hypergeometric with population
// N, K successes in the population and n draws. Terms are summed in log
// space.
func HypergeomUpper(k, N, K, n int) float64 {
	if k <= 0 {
		return 1
	}
	hi := min(K, n)
	if k > hi {
		return 0
	}
	lo := max(0, n-(N-K))
	if k < lo {
		k = lo
	}

	denom := combin.LogGeneralizedBinomial(float64(N), float64(n))
	var sum float64
	for i := k; i <= hi; i++ {
		lp := combin.LogGeneralizedBinomial(float64(K), float64(i)) +
			combin.LogGeneralizedBinomial(float64(N-K), float64(n-i)) - denom
		sum += math.Exp(lp)
	}
	return math.Min(sum, 1)
}
