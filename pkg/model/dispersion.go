package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/exprflow/pkg/stats"
)

const (
	minDispersion = 1e-8
	trendIters    = 10
)

// Trend is the parametric mean-dispersion relationship
// alpha(mean) = Asymptote + Extra/mean.
type Trend struct {
	Asymptote float64
	Extra     float64
}

// At evaluates the trend at mean mu.
func (t Trend) At(mu float64) float64 {
	return t.Asymptote + t.Extra/mu
}

// geneDispersions returns rough moment estimates of the NB dispersion for
// every feature. The expected value of each normalized count comes from a
// least-squares fit of the design, so group differences do not inflate
// the estimate. Features with a zero base mean get NaN.
func geneDispersions(norm [][]float64, baseMean []float64, x *mat.Dense) []float64 {
	n, p := x.Dims()
	maxDisp := math.Max(10, float64(n))
	out := make([]float64, len(norm))

	var hat *mat.Dense
	if n > p {
		var xtx, inv mat.Dense
		xtx.Mul(x.T(), x)
		if err := inv.Inverse(&xtx); err == nil {
			hat = mat.NewDense(n, n, nil)
			var tmp mat.Dense
			tmp.Mul(x, &inv)
			hat.Mul(&tmp, x.T())
		}
	}

	for i, y := range norm {
		if baseMean[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		var est float64
		if hat != nil {
			yv := mat.NewVecDense(n, y)
			var mu mat.VecDense
			mu.MulVec(hat, yv)
			for j := 0; j < n; j++ {
				m := math.Max(mu.AtVec(j), 1)
				d := y[j] - m
				est += (d*d - m) / (m * m)
			}
			est /= float64(n - p)
		} else {
			est = momentDispersion(y, baseMean[i])
		}
		out[i] = math.Min(math.Max(est, minDispersion), maxDisp)
	}
	return out
}

func momentDispersion(y []float64, mean float64) float64 {
	var ss float64
	for _, v := range y {
		ss += (v - mean) * (v - mean)
	}
	v := ss / float64(max(len(y)-1, 1))
	return (v - mean) / (mean * mean)
}

// fitTrend fits Trend by iteratively re-weighted least squares with gamma
// weights 1/fitted^2, dropping outlying genes between iterations. It falls
// back to a constant trend at the median dispersion when the fit does not
// produce positive coefficients.
func fitTrend(disp, baseMean []float64) Trend {
	var means, ds []float64
	for i, d := range disp {
		if !math.IsNaN(d) && d > 100*minDispersion && baseMean[i] > 0 {
			means = append(means, baseMean[i])
			ds = append(ds, d)
		}
	}
	fallback := Trend{Asymptote: stats.Median(ds)}
	if len(ds) < 3 {
		if math.IsNaN(fallback.Asymptote) {
			fallback.Asymptote = 0.1
		}
		return fallback
	}

	t := Trend{Asymptote: 0.1, Extra: 1}
	for iter := 0; iter < trendIters; iter++ {
		var s00, s01, s11, b0, b1 float64
		used := 0
		for k, m := range means {
			fitted := t.At(m)
			ratio := ds[k] / fitted
			if ratio <= 1e-4 || ratio >= 15 {
				continue
			}
			w := 1 / (fitted * fitted)
			inv := 1 / m
			s00 += w
			s01 += w * inv
			s11 += w * inv * inv
			b0 += w * ds[k]
			b1 += w * ds[k] * inv
			used++
		}
		if used < 3 {
			return fallback
		}
		a := mat.NewSymDense(2, nil)
		a.SetSym(0, 0, s00)
		a.SetSym(0, 1, s01)
		a.SetSym(1, 1, s11)

		var coef mat.VecDense
		if err := coef.SolveVec(a, mat.NewVecDense(2, []float64{b0, b1})); err != nil {
			return fallback
		}
		next := Trend{Asymptote: coef.AtVec(0), Extra: coef.AtVec(1)}
		if next.Asymptote <= 0 || next.Extra <= 0 {
			return fallback
		}
		change := math.Pow(math.Log(next.Asymptote/t.Asymptote), 2) + math.Pow(math.Log(next.Extra/t.Extra), 2)
		t = next
		if change < 1e-6 {
			break
		}
	}
	return t
}

// finalDispersions takes, per feature, the larger of the gene-wise
// estimate and the trend.
func finalDispersions(disp, baseMean []float64, t Trend) []float64 {
	out := make([]float64, len(disp))
	for i, d := range disp {
		if math.IsNaN(d) {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Max(d, t.At(baseMean[i]))
	}
	return out
}
