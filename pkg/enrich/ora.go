// Package enrich runs over-representation analysis (ORA) of a significant
// gene subset against gene-set collections.
//
// The test follows the clusterProfiler conventions: the universe is
// intersected with annotated genes, sets are restricted to the universe
// and size-filtered, and each remaining set with at least one hit gets a
// hypergeometric upper-tail p-value, adjusted with Benjamini-Hochberg.
package enrich

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/stats"
)

// Tester runs an enrichment test on a gene selection.
type Tester interface {
	Test(ctx context.Context, sel results.Selection) (Result, error)
}

// Term is one enriched gene set.
type Term struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	GeneRatio   string   `json:"geneRatio"`
	BgRatio     string   `json:"bgRatio"`
	Ratio       float64  `json:"ratio"`
	PValue      float64  `json:"pvalue"`
	PAdj        float64  `json:"padj"`
	Count       int      `json:"count"`
	Genes       []string `json:"genes"`
}

// Result is the outcome of a test. Empty Rows is a valid result.
type Result struct {
	Rows []Term `json:"rows"`

	// Universe and Selected are the sizes after intersecting with the
	// annotated genes; Tested counts sets that reached the test.
	Universe int `json:"universe"`
	Selected int `json:"selected"`
	Tested   int `json:"tested"`
}

// Top returns the first n rows (all rows when n <= 0).
func (r Result) Top(n int) []Term {
	if n <= 0 || n >= len(r.Rows) {
		return r.Rows
	}
	return r.Rows[:n]
}

// ORA is the hypergeometric over-representation test.
type ORA struct {
	Sets         GeneSets
	MinSize      int
	MaxSize      int
	PValueCutoff float64
	PAdjCutoff   float64
}

// NewORA returns an ORA over sets with the clusterProfiler defaults.
func NewORA(sets GeneSets) ORA {
	return ORA{Sets: sets, MinSize: 10, MaxSize: 500, PValueCutoff: 0.05, PAdjCutoff: 0.2}
}

func (o ORA) Test(ctx context.Context, sel results.Selection) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if o.MinSize > o.MaxSize && o.MaxSize > 0 {
		return Result{}, fmt.Errorf("min set size %d exceeds max %d", o.MinSize, o.MaxSize)
	}

	annotated := o.Sets.Genes()
	universe := map[string]bool{}
	for _, g := range sel.Universe {
		if annotated[g] {
			universe[g] = true
		}
	}
	var significant []string
	isSig := map[string]bool{}
	for _, g := range sel.Significant {
		if universe[g] && !isSig[g] {
			isSig[g] = true
			significant = append(significant, g)
		}
	}

	res := Result{Universe: len(universe), Selected: len(significant), Rows: []Term{}}
	if len(significant) == 0 || len(universe) == 0 {
		return res, nil
	}

	N, n := len(universe), len(significant)
	var terms []Term
	for _, set := range o.Sets {
		K := 0
		var hits []string
		for _, g := range set.Genes {
			if !universe[g] {
				continue
			}
			K++
			if isSig[g] {
				hits = append(hits, g)
			}
		}
		if K < o.MinSize || (o.MaxSize > 0 && K > o.MaxSize) || len(hits) == 0 {
			continue
		}
		k := len(hits)
		terms = append(terms, Term{
			ID:          set.ID,
			Description: set.Description,
			GeneRatio:   fmt.Sprintf("%d/%d", k, n),
			BgRatio:     fmt.Sprintf("%d/%d", K, N),
			Ratio:       float64(k) / float64(n),
			PValue:      stats.HypergeomUpper(k, N, K, n),
			Count:       k,
			Genes:       hits,
		})
	}
	res.Tested = len(terms)

	p := make([]float64, len(terms))
	for i, t := range terms {
		p[i] = t.PValue
	}
	for i, q := range stats.AdjustBH(p) {
		terms[i].PAdj = q
	}

	for _, t := range terms {
		if t.PValue < o.PValueCutoff && t.PAdj < o.PAdjCutoff {
			res.Rows = append(res.Rows, t)
		}
	}
	slices.SortStableFunc(res.Rows, func(a, b Term) int {
		if a.PValue != b.PValue {
			if a.PValue < b.PValue {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return res, nil
}
