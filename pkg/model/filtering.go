package model

import (
	"math"

	"github.com/matzehuels/exprflow/pkg/stats"
)

const filterGrid = 50

// independentFiltering adjusts p with Benjamini-Hochberg after removing
// features whose base mean falls below a quantile threshold. The threshold
// is taken from an evenly spaced grid between the fraction of all-zero
// features and the 0.95 quantile, choosing the first grid point with the
// most rejections at alpha. Filtered features get a NaN padj.
func independentFiltering(p, baseMean []float64, alpha float64) ([]float64, float64) {
	zeros := 0
	for _, m := range baseMean {
		if m == 0 {
			zeros++
		}
	}
	lower := float64(zeros) / float64(max(len(baseMean), 1))
	upper := 0.95
	if lower >= upper {
		return stats.AdjustBH(p), 0
	}

	var (
		bestPAdj   []float64
		bestCutoff float64
		bestRej    = -1
	)
	filtered := make([]float64, len(p))
	for k := 0; k < filterGrid; k++ {
		theta := lower + (upper-lower)*float64(k)/float64(filterGrid-1)
		cutoff := stats.Quantile(theta, baseMean)
		for i := range p {
			filtered[i] = p[i]
			if !(baseMean[i] > cutoff) {
				filtered[i] = math.NaN()
			}
		}
		padj := stats.AdjustBH(filtered)
		rej := 0
		for _, v := range padj {
			if v < alpha {
				rej++
			}
		}
		if rej > bestRej {
			bestRej, bestPAdj, bestCutoff = rej, padj, cutoff
		}
	}
	return bestPAdj, bestCutoff
}
