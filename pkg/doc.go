// Package pkg provides the libraries behind exprflow differential-expression
// analysis.
//
// # Overview
//
// exprflow takes an RNA-seq count matrix and its sample table, fits a
// negative binomial GLM per gene, tests one coefficient and turns the result
// into annotated tables, gene-set enrichment and figures. The pkg directory
// is organized into four main areas:
//
//  1. Domain logic: [dataset], [model], [shrink], [results], [annotation], [enrich], [stats]
//  2. Presentation: [plot], [render]
//  3. Infrastructure: [cache], [store], [artifact], [observability], [errors]
//  4. Orchestration: [pipeline], with external clients in [integrations]
//
// # Architecture
//
// The typical data flow through exprflow:
//
//	Bundle (manifest + counts + samples + GMT)
//	         ↓
//	    [dataset] package (load, relevel)
//	         ↓
//	    [model] package (size factors, dispersions, IRLS, Wald test)
//	         ↓
//	    [results] + [shrink] packages (result table, moderated fold changes)
//	         ↓
//	    [annotation] package (BioMart or offline symbol mapping)
//	         ↓
//	    [results] package (clean, filter)
//	         ↓
//	    [enrich] package (over-representation analysis)
//	         ↓
//	    [plot] + [render] packages (SVG/PNG/PDF figures, HTML report)
//
// # Quick Start
//
// Run the whole analysis on the builtin dataset:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/exprflow/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	opts := pipeline.DefaultOptions()
//	opts.Reference = "untrt"
//	res, err := runner.Execute(context.Background(), opts)
//
// Or drive the stages yourself:
//
//	b, _ := dataset.Load(ctx, "builtin:airway-mini")
//	d, _ := model.NewDesign(b.Counts, b.Samples, b.Manifest.Design)
//	fit, _ := model.NewNegBinFitter().Fit(ctx, d)
//	names := fit.ResultsNames()
//	t, _ := fit.Results(names[len(names)-1], model.DefaultResultsOptions())
//	sel := results.Filter(results.Clean(t, results.CleanOptions{}), results.DefaultThresholds())
//
// # Infrastructure
//
// [cache] holds BioMart responses and downloaded gene sets in a file or
// Redis cache. [store] records runs in SQLite or Postgres. [artifact]
// writes outputs to a directory and optionally mirrors them to S3.
// [observability] exposes hooks with a Prometheus implementation.
//
// [dataset]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/dataset
// [model]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/model
// [shrink]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/shrink
// [results]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/results
// [annotation]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/annotation
// [enrich]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/enrich
// [stats]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/stats
// [plot]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/plot
// [render]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/render
// [cache]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/cache
// [store]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/store
// [artifact]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/artifact
// [observability]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/errors
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/pipeline
// [integrations]: https://pkg.go.dev/github.com/matzehuels/exprflow/pkg/integrations
package pkg
