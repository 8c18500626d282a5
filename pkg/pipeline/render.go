package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/exprflow/pkg/plot"
	"github.com/matzehuels/exprflow/pkg/render"
	"github.com/matzehuels/exprflow/pkg/results"
)

type figure struct {
	name  string
	title string
	draw  func(ctx context.Context) ([]byte, error)

	svg     []byte
	encoded map[render.Format][]byte
}

// Render generates every figure of res in the requested formats plus the
// interactive HTML report. Figures are drawn concurrently. Artifacts are
// keyed by file name, e.g. "volcano.svg".
func Render(ctx context.Context, res *Result, opts Options) (map[string][]byte, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	popts := opts.PlotOptions()

	figs := []*figure{
		{name: FigureMA, title: "MA plot", draw: func(context.Context) ([]byte, error) {
			return plot.MA(res.Table, popts), nil
		}},
		{name: FigureVolcano, title: "Volcano plot", draw: func(context.Context) ([]byte, error) {
			return plot.Volcano(res.Table, popts), nil
		}},
		{name: FigureEnrichmentDot, title: "Enrichment (dot)", draw: func(context.Context) ([]byte, error) {
			return plot.EnrichmentDot(res.Enrichment, popts), nil
		}},
		{name: FigureEnrichmentBar, title: "Enrichment (bar)", draw: func(context.Context) ([]byte, error) {
			return plot.EnrichmentBar(res.Enrichment, popts), nil
		}},
	}
	if !opts.SkipNetwork {
		figs = append(figs, &figure{name: FigureNetwork, title: "Gene-set network", draw: func(ctx context.Context) ([]byte, error) {
			return plot.Network(ctx, res.Enrichment, plot.NetworkOptions{
				TopN:   DefaultNetworkTopN,
				Labels: symbolLabels(res.Table, opts.Key),
			})
		}})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range figs {
		g.Go(func() error {
			svg, err := f.draw(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			f.svg = svg
			f.encoded = make(map[render.Format][]byte, len(opts.Formats))
			for _, format := range opts.Formats {
				data, err := render.Encode(gctx, svg, format)
				if err != nil {
					return fmt.Errorf("%s %s: %w", f.name, format, err)
				}
				f.encoded[format] = data
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	artifacts := make(map[string][]byte, len(figs)*len(opts.Formats)+1)
	report := plot.Report{Title: reportTitle(res), Summary: reportSummary(res)}
	for _, f := range figs {
		for format, data := range f.encoded {
			artifacts[f.name+format.Ext()] = data
		}
		report.Figures = append(report.Figures, plot.Figure{Name: f.name, Title: f.title, SVG: f.svg})
	}
	page, err := plot.Interactive(report)
	if err != nil {
		return nil, err
	}
	artifacts[FileReport] = page
	return artifacts, nil
}

// symbolLabels maps the identifiers used in enrichment (the selection key,
// falling back to the primary ID) to gene symbols.
func symbolLabels(t results.Table, key results.Key) map[string]string {
	labels := make(map[string]string, len(t.Rows))
	for _, r := range t.Rows {
		if r.Symbol == "" {
			continue
		}
		id := r.Value(key)
		if id == "" {
			id = r.ID
		}
		labels[id] = r.Symbol
	}
	return labels
}

func reportTitle(res *Result) string {
	name := ""
	if res.Bundle != nil {
		name = res.Bundle.Manifest.Name
	}
	switch {
	case name != "" && res.Coefficient != "":
		return name + ": " + res.Coefficient
	case res.Coefficient != "":
		return res.Coefficient
	}
	return name
}

func reportSummary(res *Result) []plot.Field {
	var fields []plot.Field
	add := func(k, v string) {
		if v != "" {
			fields = append(fields, plot.Field{Key: k, Value: v})
		}
	}
	if res.Bundle != nil {
		add("dataset", res.Bundle.Source)
	}
	add("run", res.RunID)
	add("coefficient", res.Coefficient)
	add("reference", res.Reference)
	add("features", strconv.Itoa(res.Table.Len()))
	if res.Selection.Universe != nil {
		add("significant", strconv.Itoa(len(res.Selection.Significant)))
		add("universe", strconv.Itoa(len(res.Selection.Universe)))
	}
	add("enriched terms", strconv.Itoa(len(res.Enrichment.Rows)))
	for _, w := range res.Warnings {
		add("warning", w)
	}
	return fields
}
