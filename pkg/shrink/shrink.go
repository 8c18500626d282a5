// Package shrink moderates log2 fold-change estimates of noisy features.
package shrink

import (
	"context"
	"fmt"
	"math"

	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/stats"
)

// Shrinker returns a new table with moderated fold changes. P-values are
// left untouched.
type Shrinker interface {
	Shrink(ctx context.Context, t results.Table) (results.Table, error)
}

// New returns the shrinker named by method: "normal" or "none".
func New(method string) (Shrinker, error) {
	switch method {
	case "", "normal":
		return Normal{}, nil
	case "none":
		return None{}, nil
	}
	return nil, fmt.Errorf("unknown shrinkage method %q (want normal or none)", method)
}

// None returns a copy of the table.
type None struct{}

func (None) Shrink(_ context.Context, t results.Table) (results.Table, error) {
	return t.Clone(), nil
}

// z975 is the 0.975 quantile of the standard normal.
const z975 = 1.959964

// Normal applies an empirical-Bayes zero-centred normal prior. The prior
// variance matches the Quantile (default 0.95) upper quantile of |LFC| to
// the normal's 97.5% point. Each estimate is scaled by
// priorVar/(priorVar+se^2) and its standard error becomes the posterior
// standard deviation.
type Normal struct {
	Quantile float64
}

// PriorVariance returns the prior variance estimated from t, or NaN when t
// has no finite fold change.
func (n Normal) PriorVariance(t results.Table) float64 {
	q := n.Quantile
	if q <= 0 || q >= 1 {
		q = 0.95
	}
	abs := make([]float64, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !results.Missing(r.Log2FoldChange) && !results.Missing(r.LfcSE) {
			abs = append(abs, math.Abs(r.Log2FoldChange))
		}
	}
	u := stats.Quantile(q, abs)
	return math.Pow(u/z975, 2)
}

func (n Normal) Shrink(ctx context.Context, t results.Table) (results.Table, error) {
	if err := ctx.Err(); err != nil {
		return results.Table{}, err
	}
	out := t.Clone()
	prior := n.PriorVariance(t)
	if math.IsNaN(prior) || prior <= 0 {
		return out, nil
	}
	for i := range out.Rows {
		r := &out.Rows[i]
		if results.Missing(r.Log2FoldChange) || results.Missing(r.LfcSE) || r.LfcSE <= 0 {
			continue
		}
		se2 := r.LfcSE * r.LfcSE
		r.Log2FoldChange *= prior / (prior + se2)
		r.LfcSE = math.Sqrt(1 / (1/se2 + 1/prior))
	}
	return out, nil
}
