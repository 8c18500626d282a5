// Package plot renders differential-expression and enrichment results as
// standalone SVG documents.
//
// Every renderer is a pure function of its input and options. An empty input
// still produces a valid document: an empty frame with a "no data" label.
// Point and bar elements carry a data-tip attribute that [Interactive] turns
// into hover tooltips.
package plot

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"strconv"
)

// Options configures plot rendering.
type Options struct {
	// Width and Height are the document size in pixels.
	Width  int
	Height int

	// Title replaces the default plot title when non-empty.
	Title string

	// PAdj is the adjusted p-value cutoff used to highlight features.
	PAdj float64

	// Log2FC is the absolute fold-change cutoff used by [Volcano].
	Log2FC float64

	// TopN limits enrichment plots to the first N terms by p-value.
	TopN int
}

const (
	defaultWidth  = 720
	defaultHeight = 540
	defaultTopN   = 20
)

// DefaultOptions returns the options used by the pipeline.
func DefaultOptions() Options {
	return Options{
		Width:  defaultWidth,
		Height: defaultHeight,
		PAdj:   0.05,
		Log2FC: 1,
		TopN:   defaultTopN,
	}
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.PAdj <= 0 {
		o.PAdj = 0.05
	}
	if o.Log2FC < 0 {
		o.Log2FC = 0
	}
	if o.TopN <= 0 {
		o.TopN = defaultTopN
	}
	return o
}

func (o Options) title(def string) string {
	if o.Title != "" {
		return o.Title
	}
	return def
}

// Palette.
const (
	colorBackground = "#ffffff"
	colorAxis       = "#333333"
	colorGrid       = "#e5e5e5"
	colorMuted      = "#9e9e9e"
	colorDown       = "#1f77b4"
	colorHighlight  = "#d62728"
	gradientLow     = "#e41a1c"
	gradientHigh    = "#377eb8"
	fontFamily      = "Helvetica, Arial, sans-serif"
)

type margins struct {
	top, right, bottom, left float64
}

var defaultMargins = margins{top: 48, right: 24, bottom: 56, left: 68}

type canvas struct {
	buf  bytes.Buffer
	w, h float64
	m    margins
}

func newCanvas(opts Options, m margins) *canvas {
	return &canvas{w: float64(opts.Width), h: float64(opts.Height), m: m}
}

func (c *canvas) plotLeft() float64   { return c.m.left }
func (c *canvas) plotRight() float64  { return c.w - c.m.right }
func (c *canvas) plotTop() float64    { return c.m.top }
func (c *canvas) plotBottom() float64 { return c.h - c.m.bottom }

func (c *canvas) begin(title string) {
	fmt.Fprintf(&c.buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %s %s" width="%s" height="%s" font-family="%s">`+"\n",
		num(c.w), num(c.h), num(c.w), num(c.h), fontFamily)
	fmt.Fprintf(&c.buf, `  <rect class="background" x="0" y="0" width="%s" height="%s" fill="%s"/>`+"\n",
		num(c.w), num(c.h), colorBackground)
	c.text(c.w/2, c.m.top/2+6, title, "middle", 16, `font-weight="bold" class="title"`)
}

func (c *canvas) end() []byte {
	c.buf.WriteString("</svg>\n")
	return c.buf.Bytes()
}

// frame draws the plot area border.
func (c *canvas) frame() {
	fmt.Fprintf(&c.buf, `  <rect class="frame" x="%s" y="%s" width="%s" height="%s" fill="none" stroke="%s"/>`+"\n",
		num(c.plotLeft()), num(c.plotTop()),
		num(c.plotRight()-c.plotLeft()), num(c.plotBottom()-c.plotTop()), colorAxis)
}

// noData draws an empty frame with a centred label.
func (c *canvas) noData() {
	c.frame()
	c.text((c.plotLeft()+c.plotRight())/2, (c.plotTop()+c.plotBottom())/2, "no data", "middle", 14,
		fmt.Sprintf(`class="no-data" fill="%s"`, colorMuted))
}

func (c *canvas) text(x, y float64, s, anchor string, size int, extra string) {
	if extra != "" {
		extra = " " + extra
	}
	fmt.Fprintf(&c.buf, `  <text x="%s" y="%s" text-anchor="%s" font-size="%d"%s>%s</text>`+"\n",
		num(x), num(y), anchor, size, extra, html.EscapeString(s))
}

func (c *canvas) line(x1, y1, x2, y2 float64, stroke string, dashed bool) {
	dash := ""
	if dashed {
		dash = ` stroke-dasharray="4 3"`
	}
	fmt.Fprintf(&c.buf, `  <line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s"%s/>`+"\n",
		num(x1), num(y1), num(x2), num(y2), stroke, dash)
}

func (c *canvas) circle(x, y, r float64, fill string, opacity float64, tip string) {
	fmt.Fprintf(&c.buf, `  <circle cx="%s" cy="%s" r="%s" fill="%s" fill-opacity="%s"%s</circle>`+"\n",
		num(x), num(y), num(r), fill, num(opacity), tipAttrs(tip))
}

func (c *canvas) rect(x, y, w, h float64, fill string, tip string) {
	fmt.Fprintf(&c.buf, `  <rect x="%s" y="%s" width="%s" height="%s" fill="%s"%s</rect>`+"\n",
		num(x), num(y), num(w), num(h), fill, tipAttrs(tip))
}

// tipAttrs closes the opening tag and adds a native title for non-JS viewers.
func tipAttrs(tip string) string {
	if tip == "" {
		return ">"
	}
	t := html.EscapeString(tip)
	return fmt.Sprintf(` data-tip="%s"><title>%s</title>`, t, t)
}

// xAxis draws the bottom axis with ticks, grid lines and a label.
func (c *canvas) xAxis(s scale, label string) {
	for _, v := range niceTicks(s.d0, s.d1, 6) {
		x := s.at(v)
		c.line(x, c.plotTop(), x, c.plotBottom(), colorGrid, false)
		c.line(x, c.plotBottom(), x, c.plotBottom()+5, colorAxis, false)
		c.text(x, c.plotBottom()+18, tickLabel(v), "middle", 11, "")
	}
	c.text((c.plotLeft()+c.plotRight())/2, c.h-14, label, "middle", 12, `class="x-label"`)
}

// yAxis draws the left axis with ticks, grid lines and a rotated label.
func (c *canvas) yAxis(s scale, label string) {
	for _, v := range niceTicks(s.d0, s.d1, 6) {
		y := s.at(v)
		c.line(c.plotLeft(), y, c.plotRight(), y, colorGrid, false)
		c.line(c.plotLeft()-5, y, c.plotLeft(), y, colorAxis, false)
		c.text(c.plotLeft()-8, y+4, tickLabel(v), "end", 11, "")
	}
	cy := (c.plotTop() + c.plotBottom()) / 2
	c.text(18, cy, label, "middle", 12,
		fmt.Sprintf(`class="y-label" transform="rotate(-90 18 %s)"`, num(cy)))
}

// scale maps the domain [d0, d1] linearly onto the range [r0, r1].
type scale struct {
	d0, d1 float64
	r0, r1 float64
}

func (s scale) at(v float64) float64 {
	if s.d1 == s.d0 {
		return (s.r0 + s.r1) / 2
	}
	return s.r0 + (v-s.d0)/(s.d1-s.d0)*(s.r1-s.r0)
}

func (c *canvas) xScale(lo, hi float64) scale {
	return scale{d0: lo, d1: hi, r0: c.plotLeft(), r1: c.plotRight()}
}

func (c *canvas) yScale(lo, hi float64) scale {
	return scale{d0: lo, d1: hi, r0: c.plotBottom(), r1: c.plotTop()}
}

// extent returns the padded [min, max] of xs.
func extent(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 1
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if lo == hi {
		return lo - 1, hi + 1
	}
	pad := (hi - lo) * 0.05
	return lo - pad, hi + pad
}

// symmetric returns a padded extent centred on zero.
func symmetric(xs []float64) (float64, float64) {
	m := 0.0
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	if m == 0 {
		m = 1
	}
	m *= 1.05
	return -m, m
}

// niceTicks returns about n round tick values covering [lo, hi].
func niceTicks(lo, hi float64, n int) []float64 {
	if hi <= lo || n < 1 {
		return []float64{lo}
	}
	step := niceStep((hi - lo) / float64(n))
	var ticks []float64
	for v := math.Ceil(lo/step) * step; v <= hi+step*1e-9; v += step {
		if math.Abs(v) < step*1e-9 {
			v = 0
		}
		ticks = append(ticks, v)
	}
	return ticks
}

func niceStep(raw float64) float64 {
	exp := math.Floor(math.Log10(raw))
	base := math.Pow(10, exp)
	switch f := raw / base; {
	case f <= 1:
		return base
	case f <= 2:
		return 2 * base
	case f <= 5:
		return 5 * base
	default:
		return 10 * base
	}
}

func tickLabel(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

// num formats a coordinate with at most two decimals.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// gradient interpolates between two hex colours; t is clamped to [0, 1].
func gradient(from, to string, t float64) string {
	t = math.Max(0, math.Min(1, t))
	r1, g1, b1 := hexRGB(from)
	r2, g2, b2 := hexRGB(to)
	mix := func(a, b int) int { return int(math.Round(float64(a) + t*float64(b-a))) }
	return fmt.Sprintf("#%02x%02x%02x", mix(r1, r2), mix(g1, g2), mix(b1, b2))
}

func hexRGB(s string) (int, int, int) {
	var r, g, b int
	fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b)
	return r, g, b
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
