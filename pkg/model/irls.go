package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// betaTol is the largest coefficient step, in natural-log units, still
// counted as converged.
const betaTol = 1e-9

type geneFit struct {
	beta      []float64 // natural-log scale
	se        []float64
	deviance  float64
	iters     int
	converged bool
}

// fitGene fits one feature's NB GLM with log link by iteratively
// re-weighted least squares. offset holds log size factors; alpha is the
// dispersion. A small ridge penalty on the non-intercept coefficients keeps
// the normal equations solvable when a group has only zero counts.
func fitGene(y []float64, x *mat.Dense, offset []float64, alpha float64, o NegBinFitter) geneFit {
	n, p := x.Dims()
	mu := make([]float64, n)
	for i, v := range y {
		mu[i] = v + 0.1
	}

	res := geneFit{beta: make([]float64, p), se: make([]float64, p), deviance: math.NaN()}
	xtwx := mat.NewSymDense(p, nil)
	xtwz := mat.NewVecDense(p, nil)
	beta := mat.NewVecDense(p, nil)
	prev := make([]float64, p)

	for iter := 1; iter <= o.MaxIter; iter++ {
		normalEquations(x, y, mu, offset, alpha, o.Ridge, xtwx, xtwz)
		if err := beta.SolveVec(xtwx, xtwz); err != nil {
			break
		}
		for i := 0; i < n; i++ {
			eta := offset[i]
			for j := 0; j < p; j++ {
				eta += x.At(i, j) * beta.AtVec(j)
			}
			mu[i] = math.Max(math.Exp(eta), o.MinMu)
		}

		step := 0.0
		for j := 0; j < p; j++ {
			step = math.Max(step, math.Abs(beta.AtVec(j)-prev[j]))
			prev[j] = beta.AtVec(j)
		}

		dev := nbDeviance(y, mu, alpha)
		res.iters = iter
		if !math.IsNaN(res.deviance) && math.Abs(dev-res.deviance)/(math.Abs(dev)+0.1) < o.Tol && step < betaTol {
			res.deviance = dev
			res.converged = true
			break
		}
		res.deviance = dev
	}

	for j := 0; j < p; j++ {
		res.beta[j] = beta.AtVec(j)
	}

	normalEquations(x, y, mu, offset, alpha, o.Ridge, xtwx, xtwz)
	var cov mat.Dense
	if err := cov.Inverse(xtwx); err != nil {
		for j := range res.se {
			res.se[j] = math.NaN()
		}
		res.converged = false
		return res
	}
	for j := 0; j < p; j++ {
		res.se[j] = math.Sqrt(math.Max(cov.At(j, j), 0))
	}
	return res
}

// normalEquations fills X'WX (+ ridge) and X'Wz for the current mu.
func normalEquations(x *mat.Dense, y, mu, offset []float64, alpha, ridge float64, xtwx *mat.SymDense, xtwz *mat.VecDense) {
	n, p := x.Dims()
	for a := 0; a < p; a++ {
		xtwz.SetVec(a, 0)
		for b := a; b < p; b++ {
			xtwx.SetSym(a, b, 0)
		}
	}
	for i := 0; i < n; i++ {
		w := mu[i] / (1 + alpha*mu[i])
		z := math.Log(mu[i]) - offset[i] + (y[i]-mu[i])/mu[i]
		for a := 0; a < p; a++ {
			xa := x.At(i, a)
			if xa == 0 {
				continue
			}
			xtwz.SetVec(a, xtwz.AtVec(a)+w*xa*z)
			for b := a; b < p; b++ {
				if xb := x.At(i, b); xb != 0 {
					xtwx.SetSym(a, b, xtwx.At(a, b)+w*xa*xb)
				}
			}
		}
	}
	for a := 1; a < p; a++ {
		xtwx.SetSym(a, a, xtwx.At(a, a)+ridge)
	}
}

// nbDeviance returns the NB deviance of y given mu and dispersion alpha.
func nbDeviance(y, mu []float64, alpha float64) float64 {
	var dev float64
	r := 1 / alpha
	for i, v := range y {
		var term float64
		if v > 0 {
			term = v * math.Log(v/mu[i])
		}
		term -= (v + r) * math.Log((1+alpha*v)/(1+alpha*mu[i]))
		dev += 2 * term
	}
	return dev
}
