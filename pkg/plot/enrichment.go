package plot

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/matzehuels/exprflow/pkg/enrich"
)

const (
	labelChars  = 48
	legendWidth = 110
)

// topTerms returns the first n terms ordered by p-value.
func topTerms(r enrich.Result, n int) []enrich.Term {
	terms := slices.Clone(r.Rows)
	slices.SortStableFunc(terms, func(a, b enrich.Term) int {
		return cmp.Compare(a.PValue, b.PValue)
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

// termMargins widens the left margin to fit term labels and reserves room
// for the legend on the right.
func termMargins(terms []enrich.Term) margins {
	longest := 0
	for _, t := range terms {
		longest = max(longest, len([]rune(truncate(label(t), labelChars))))
	}
	m := defaultMargins
	m.left = math.Min(340, math.Max(m.left, float64(longest)*6.2+16))
	m.right = legendWidth
	return m
}

func label(t enrich.Term) string {
	if t.Description != "" && t.Description != t.ID {
		return t.Description
	}
	return t.ID
}

// padjRange returns the padj span used by the colour gradient.
func padjRange(terms []enrich.Term) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, t := range terms {
		lo = math.Min(lo, t.PAdj)
		hi = math.Max(hi, t.PAdj)
	}
	return lo, hi
}

func padjColor(p, lo, hi float64) string {
	if hi <= lo {
		return gradientLow
	}
	return gradient(gradientLow, gradientHigh, (p-lo)/(hi-lo))
}

func termTip(t enrich.Term) string {
	return fmt.Sprintf("%s: %d genes, ratio %s, padj=%.3g", label(t), t.Count, t.GeneRatio, t.PAdj)
}

// EnrichmentDot draws the top terms as dots. The x position is the gene
// ratio, the dot area grows with the overlap count and the colour encodes
// padj.
func EnrichmentDot(r enrich.Result, opts Options) []byte {
	opts = opts.withDefaults()
	terms := topTerms(r, opts.TopN)
	c := newCanvas(opts, termMargins(terms))
	c.begin(opts.title("Enrichment"))
	if len(terms) == 0 {
		c.noData()
		return c.end()
	}

	ratios := make([]float64, len(terms))
	minCount, maxCount := terms[0].Count, terms[0].Count
	for i, t := range terms {
		ratios[i] = t.Ratio
		minCount = min(minCount, t.Count)
		maxCount = max(maxCount, t.Count)
	}
	lo, hi := extent(append(ratios, 0))
	x := c.xScale(math.Max(0, lo), hi)
	c.xAxis(x, "gene ratio")

	band := (c.plotBottom() - c.plotTop()) / float64(len(terms))
	lpLo, lpHi := padjRange(terms)
	for i, t := range terms {
		cy := c.plotTop() + band*(float64(i)+0.5)
		c.line(c.plotLeft(), cy, c.plotRight(), cy, colorGrid, false)
		c.text(c.plotLeft()-8, cy+4, truncate(label(t), labelChars), "end", 11, `class="term"`)
		c.circle(x.at(t.Ratio), cy, dotRadius(t.Count, minCount, maxCount, band),
			padjColor(t.PAdj, lpLo, lpHi), 0.9, termTip(t))
	}
	c.frame()
	c.legend(lpLo, lpHi)
	return c.end()
}

func dotRadius(count, lo, hi int, band float64) float64 {
	rmax := math.Min(12, band/2-1)
	rmin := math.Min(4, rmax)
	if hi <= lo {
		return (rmin + rmax) / 2
	}
	t := float64(count-lo) / float64(hi-lo)
	return rmin + t*(rmax-rmin)
}

// EnrichmentBar draws the top terms as horizontal bars whose length is the
// gene ratio and whose colour encodes padj.
func EnrichmentBar(r enrich.Result, opts Options) []byte {
	opts = opts.withDefaults()
	terms := topTerms(r, opts.TopN)
	c := newCanvas(opts, termMargins(terms))
	c.begin(opts.title("Enrichment"))
	if len(terms) == 0 {
		c.noData()
		return c.end()
	}

	top := 0.0
	for _, t := range terms {
		top = math.Max(top, t.Ratio)
	}
	if top == 0 {
		top = 1
	}
	x := c.xScale(0, top*1.05)
	c.xAxis(x, "gene ratio")

	band := (c.plotBottom() - c.plotTop()) / float64(len(terms))
	lpLo, lpHi := padjRange(terms)
	for i, t := range terms {
		y := c.plotTop() + band*float64(i)
		c.rect(x.at(0), y+band*0.15, x.at(t.Ratio)-x.at(0), band*0.7,
			padjColor(t.PAdj, lpLo, lpHi), termTip(t))
		c.text(c.plotLeft()-8, y+band/2+4, truncate(label(t), labelChars), "end", 11, `class="term"`)
	}
	c.frame()
	c.legend(lpLo, lpHi)
	return c.end()
}

// legend draws the padj colour bar in the right margin.
func (c *canvas) legend(lo, hi float64) {
	const steps = 20
	x := c.plotRight() + 24
	top := c.plotTop() + 20
	h := math.Min(160, c.plotBottom()-top)
	c.text(x, top-8, "p.adjust", "start", 11, `class="legend"`)
	for i := range steps {
		t := float64(i) / float64(steps-1)
		c.rect(x, top+h*float64(i)/steps, 14, h/steps+0.5, gradient(gradientLow, gradientHigh, t), "")
	}
	c.text(x+20, top+10, fmt.Sprintf("%.2g", lo), "start", 10, "")
	c.text(x+20, top+h, fmt.Sprintf("%.2g", hi), "start", 10, "")
}
