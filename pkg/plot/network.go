package plot

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/exprflow/pkg/enrich"
)

// NetworkOptions configures the category-gene network.
type NetworkOptions struct {
	// TopN limits the graph to the first N terms by p-value.
	TopN int

	// Labels maps gene identifiers to display names, typically symbols.
	Labels map[string]string
}

// NetworkDOT converts the top enriched terms into a Graphviz DOT graph that
// links each category to its overlapping genes. Category nodes are coloured
// by padj; genes shared by several categories are drawn once.
func NetworkDOT(r enrich.Result, opts NetworkOptions) string {
	n := opts.TopN
	if n <= 0 {
		n = 5
	}
	terms := topTerms(r, n)

	var buf bytes.Buffer
	buf.WriteString("graph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [fontname=\"Helvetica\", fontsize=12];\n")
	buf.WriteString("  edge [color=\"#bdbdbd\"];\n")
	buf.WriteString("  ranksep=1.2;\n")
	buf.WriteString("  nodesep=0.15;\n")
	buf.WriteString("\n")

	if len(terms) == 0 {
		buf.WriteString("  \"no data\" [shape=plaintext, fontcolor=\"#9e9e9e\"];\n")
		buf.WriteString("}\n")
		return buf.String()
	}

	lo, hi := padjRange(terms)
	for _, t := range terms {
		fmt.Fprintf(&buf, "  %q [shape=box, style=\"rounded,filled\", fillcolor=%q, fontcolor=white, label=%q, tooltip=%q];\n",
			"set:"+t.ID, padjColor(t.PAdj, lo, hi), truncate(label(t), labelChars), termTip(t))
	}

	seen := map[string]bool{}
	var genes []string
	for _, t := range terms {
		for _, g := range t.Genes {
			if !seen[g] {
				seen[g] = true
				genes = append(genes, g)
			}
		}
	}
	slices.Sort(genes)
	buf.WriteString("\n")
	for _, g := range genes {
		name := g
		if s := opts.Labels[g]; s != "" {
			name = s
		}
		fmt.Fprintf(&buf, "  %q [shape=ellipse, style=filled, fillcolor=\"#f0f0f0\", fontsize=10, label=%q];\n",
			"gene:"+g, name)
	}

	buf.WriteString("\n")
	for _, t := range terms {
		for _, g := range t.Genes {
			fmt.Fprintf(&buf, "  %q -- %q;\n", "set:"+t.ID, "gene:"+g)
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

// Network renders the category-gene network to SVG through Graphviz.
func Network(ctx context.Context, r enrich.Result, opts NetworkOptions) ([]byte, error) {
	return RenderDOT(ctx, NetworkDOT(r, opts))
}

// RenderDOT renders a DOT graph to SVG.
func RenderDOT(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
	xmlHeadRe = regexp.MustCompile(`(?s)^.*?(<svg)`)
)

// normalizeViewBox replaces Graphviz's point-based svg header with a pixel
// sized one and drops the XML prolog so the document embeds inline.
func normalizeViewBox(svg []byte) []byte {
	svg = xmlHeadRe.ReplaceAll(svg, []byte("$1"))
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	head := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	loc := svgTagRe.FindIndex(svg)
	if loc == nil {
		return svg
	}
	return []byte(strings.Join([]string{string(svg[:loc[0]]), head, string(svg[loc[1]:])}, ""))
}
