package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/store"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Name", "Organism"}, [][]string{{"airway-mini", "hsapiens"}})
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "airway-mini")
	assert.Contains(t, out, "hsapiens")
}

func TestRowCellsLimitAndNA(t *testing.T) {
	tbl := results.Table{Rows: []results.Row{
		{ID: "G1", AltID: "101", Log2FoldChange: 1.23456, PAdj: 0.000123},
		{ID: "G2", Log2FoldChange: results.NA(), PAdj: results.NA()},
		{ID: "G3", PAdj: 0.5},
	}}
	cells := rowCells(tbl, results.KeyAltID, 2)
	assert.Equal(t, [][]string{
		{"101", "", "1.235", "0.000123"},
		{"G2", "", "NA", "NA"},
	}, cells, "rows without the key show the primary ID")
}

func TestTermCellsFallsBackToID(t *testing.T) {
	cells := termCells([]enrich.Term{{ID: "SET1", GeneRatio: "3/10", Count: 3, PAdj: 0.01}})
	assert.Equal(t, [][]string{{"SET1", "3/10", "3", "0.01"}}, cells)
}

func TestRunRows(t *testing.T) {
	rows := runRows([]store.Run{
		{ID: "0123456789abcdef", Status: store.StatusFailed, Error: "fit: no samples", Dataset: "builtin:airway-mini"},
	})
	assert.Equal(t, "01234567", rows[0][0])
	assert.Equal(t, "failed: fit: no samples", rows[0][2])
	assert.Equal(t, "-", rows[0][7])
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "warning", plural(1, "warning"))
	assert.Equal(t, "warnings", plural(2, "warning"))
	assert.Equal(t, "entries", plural(0, "entry"))
	assert.Equal(t, "keys", plural(3, "key"))
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestPrintStats(t *testing.T) {
	buf := captureStdout(t)
	printStats(1200, 87, -1, 0)
	printStats(10, 2, 3, 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1200 features")
	assert.Contains(t, lines[0], "87 significant")
	assert.NotContains(t, lines[0], "terms")
	assert.Contains(t, lines[0], "clean")
	assert.Contains(t, lines[1], "3 terms")
	assert.Contains(t, lines[1], "2 warnings")
}

func TestStatusLines(t *testing.T) {
	buf := captureStdout(t)
	printSuccess("Wrote %d files", 4)
	printWarning("mapping unavailable")
	printFile("volcano.svg")
	printKeyValue("output", "out/")

	out := buf.String()
	for _, want := range []string{"✓", "Wrote 4 files", "!", "mapping unavailable", "→", "volcano.svg", "output", "out/"} {
		assert.Contains(t, out, want)
	}
}
