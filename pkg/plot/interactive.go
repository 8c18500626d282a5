package plot

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

// Figure is one rendered SVG plot.
type Figure struct {
	Name  string
	Title string
	SVG   []byte
}

// Field is one key/value line of the report summary.
type Field struct {
	Key   string
	Value string
}

// Report is the content of an interactive HTML page.
type Report struct {
	Title   string
	Summary []Field
	Figures []Figure
}

// Interactive renders a standalone HTML page that inlines every figure and
// shows the data-tip of the element under the cursor as a tooltip.
func Interactive(r Report) ([]byte, error) {
	type figure struct {
		Name  string
		Title string
		SVG   template.HTML
	}
	data := struct {
		Title   string
		Summary []Field
		Figures []figure
	}{Title: r.Title, Summary: r.Summary}
	if data.Title == "" {
		data.Title = "exprflow report"
	}
	for _, f := range r.Figures {
		// SVG bytes come from this package's renderers or Graphviz.
		data.Figures = append(data.Figures, figure{Name: f.Name, Title: f.Title, SVG: template.HTML(f.SVG)})
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
