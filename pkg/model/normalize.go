package model

import (
	"math"

	"github.com/matzehuels/exprflow/pkg/dataset"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/stats"
)

// SizeFactors estimates per-sample normalization factors with the median
// of ratios to the per-feature geometric mean. Features with a zero in any
// sample do not contribute to the reference.
func SizeFactors(m *dataset.CountMatrix) ([]float64, error) {
	n := m.NumSamples()
	logGeo := make([]float64, 0, m.NumFeatures())
	rows := make([]int, 0, m.NumFeatures())
	for i, row := range m.Counts {
		var sum float64
		ok := true
		for _, c := range row {
			if c == 0 {
				ok = false
				break
			}
			sum += math.Log(float64(c))
		}
		if ok {
			logGeo = append(logGeo, sum/float64(n))
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrCodeFitFailed, "every feature has a zero count; size factors are undefined")
	}

	sf := make([]float64, n)
	ratios := make([]float64, len(rows))
	for j := 0; j < n; j++ {
		for k, i := range rows {
			ratios[k] = math.Log(float64(m.Counts[i][j])) - logGeo[k]
		}
		sf[j] = math.Exp(stats.Median(ratios))
	}
	return sf, nil
}

// Normalized divides every count by its sample's size factor.
func Normalized(m *dataset.CountMatrix, sf []float64) [][]float64 {
	out := make([][]float64, m.NumFeatures())
	for i, row := range m.Counts {
		out[i] = make([]float64, len(row))
		for j, c := range row {
			out[i][j] = float64(c) / sf[j]
		}
	}
	return out
}

// BaseMeans returns the mean normalized count of every feature.
func BaseMeans(norm [][]float64) []float64 {
	out := make([]float64, len(norm))
	for i, row := range norm {
		var s float64
		for _, v := range row {
			s += v
		}
		out[i] = s / float64(len(row))
	}
	return out
}
