// Package render converts rendered SVG plots into the other output formats.
//
// SVG is native. PNG and PDF go through the external rsvg-convert tool from
// librsvg:
//
//	png, err := render.ToPNG(ctx, svg, 2.0) // 2x scale
//	pdf, err := render.ToPDF(ctx, svg)
//
// [Encode] dispatches on a [Format] parsed from the --format flag or the
// plot.formats config key.
package render
