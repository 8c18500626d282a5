package plot

import (
	"fmt"
	"math"

	"github.com/matzehuels/exprflow/pkg/results"
)

type point struct {
	x, y float64
	hit  bool
	tip  string
}

// MA plots log2 fold change against log10 mean expression. Features with
// padj below opts.PAdj are highlighted. Rows with a non-positive base mean
// or a missing fold change are skipped.
func MA(t results.Table, opts Options) []byte {
	opts = opts.withDefaults()
	c := newCanvas(opts, defaultMargins)
	c.begin(opts.title("MA plot"))

	var pts []point
	for _, r := range t.Rows {
		if r.BaseMean <= 0 || !finite(r.Log2FoldChange) {
			continue
		}
		pts = append(pts, point{
			x:   math.Log10(r.BaseMean),
			y:   r.Log2FoldChange,
			hit: significant(r, opts.PAdj),
			tip: rowTip(r),
		})
	}
	if len(pts) == 0 {
		c.noData()
		return c.end()
	}

	xs, ys := coords(pts)
	x := c.xScale(extent(xs))
	y := c.yScale(symmetric(ys))
	c.xAxis(x, "log10 mean of normalized counts")
	c.yAxis(y, "log2 fold change")
	c.line(c.plotLeft(), y.at(0), c.plotRight(), y.at(0), colorAxis, true)
	drawPoints(c, x, y, pts, false)
	c.frame()
	return c.end()
}

// Volcano plots -log10(padj) against log2 fold change. A feature is
// highlighted when padj < opts.PAdj and |lfc| > opts.Log2FC. A padj below
// 1e-300 (including zero) is plotted at 300; rows with missing padj are
// skipped.
func Volcano(t results.Table, opts Options) []byte {
	opts = opts.withDefaults()
	c := newCanvas(opts, defaultMargins)
	c.begin(opts.title("Volcano plot"))

	var pts []point
	for _, r := range t.Rows {
		if results.Missing(r.PAdj) || !finite(r.Log2FoldChange) {
			continue
		}
		pts = append(pts, point{
			x:   r.Log2FoldChange,
			y:   negLog10(r.PAdj),
			hit: r.PAdj < opts.PAdj && math.Abs(r.Log2FoldChange) > opts.Log2FC,
			tip: rowTip(r),
		})
	}
	if len(pts) == 0 {
		c.noData()
		return c.end()
	}

	xs, ys := coords(pts)
	x := c.xScale(symmetric(xs))
	_, top := extent(append(ys, negLog10(opts.PAdj)))
	y := c.yScale(0, top)
	c.xAxis(x, "log2 fold change")
	c.yAxis(y, "-log10 adjusted p-value")

	cut := y.at(negLog10(opts.PAdj))
	c.line(c.plotLeft(), cut, c.plotRight(), cut, colorMuted, true)
	if opts.Log2FC > 0 {
		for _, v := range []float64{-opts.Log2FC, opts.Log2FC} {
			if v > x.d0 && v < x.d1 {
				c.line(x.at(v), c.plotTop(), x.at(v), c.plotBottom(), colorMuted, true)
			}
		}
	}

	drawPoints(c, x, y, pts, true)
	c.frame()
	return c.end()
}

// drawPoints draws background points first so highlights stay on top.
// With byDirection, highlighted points left of zero use the down colour.
func drawPoints(c *canvas, x, y scale, pts []point, byDirection bool) {
	for _, p := range pts {
		if !p.hit {
			c.circle(x.at(p.x), y.at(p.y), 2, colorMuted, 0.6, p.tip)
		}
	}
	for _, p := range pts {
		if p.hit {
			fill := colorHighlight
			if byDirection && p.x < 0 {
				fill = colorDown
			}
			c.circle(x.at(p.x), y.at(p.y), 2.5, fill, 0.85, p.tip)
		}
	}
}

func coords(pts []point) ([]float64, []float64) {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.x, p.y
	}
	return xs, ys
}

func significant(r results.Row, alpha float64) bool {
	return !results.Missing(r.PAdj) && r.PAdj < alpha
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// minPAdj is the floor for zero p-values on a log scale.
const minPAdj = 1e-300

func negLog10(p float64) float64 {
	if p < minPAdj {
		p = minPAdj
	}
	return -math.Log10(p)
}

func rowTip(r results.Row) string {
	name := r.ID
	if r.Symbol != "" {
		name = r.Symbol + " (" + r.ID + ")"
	}
	padj := "NA"
	if !results.Missing(r.PAdj) {
		padj = fmt.Sprintf("%.3g", r.PAdj)
	}
	return fmt.Sprintf("%s: lfc=%.3f padj=%s", name, r.Log2FoldChange, padj)
}
