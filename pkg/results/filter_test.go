package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterDefaults(t *testing.T) {
	tbl := Table{Rows: []Row{
		row("G1", 0.01, 2, "1"),
		row("G2", 0.2, 3, "2"),
	}}
	sel := Filter(tbl, Thresholds{PAdj: 0.05, Log2FC: 1})
	assert.Equal(t, []string{"1"}, sel.Significant)
	assert.Equal(t, []string{"1", "2"}, sel.Universe)
	assert.Equal(t, KeyAltID, sel.Key)
}

func TestFilterStrictComparisons(t *testing.T) {
	tbl := Table{Rows: []Row{
		row("G1", 0.05, 2, "1"), // padj equal to cutoff
		row("G2", 0.01, 1, "2"), // lfc equal to cutoff
		row("G3", 0.01, -1.5, "3"),
		row("G4", nan, 5, "4"),
	}}
	sel := Filter(tbl, DefaultThresholds())
	assert.Equal(t, []string{"3"}, sel.Significant)
	assert.Len(t, sel.Universe, 4)
}

func TestFilterDirection(t *testing.T) {
	tbl := Table{Rows: []Row{
		row("G1", 0.01, 2, "up"),
		row("G2", 0.01, -2, "down"),
	}}
	th := DefaultThresholds()

	th.Direction = Up
	assert.Equal(t, []string{"up"}, Filter(tbl, th).Significant)

	th.Direction = Down
	assert.Equal(t, []string{"down"}, Filter(tbl, th).Significant)

	th.Direction = Either
	assert.Equal(t, []string{"up", "down"}, Filter(tbl, th).Significant)
}

func TestFilterKeyFallback(t *testing.T) {
	tbl := Table{Rows: []Row{
		row("G1", 0.01, 2, ""),
		row("G2", 0.01, 2, "7157"),
		row("G3", 0.50, 0, "7157"),
	}}
	sel := Filter(tbl, DefaultThresholds())
	assert.Equal(t, []string{"G1", "7157"}, sel.Significant)
	assert.Equal(t, []string{"G1", "7157"}, sel.Universe, "universe is deduplicated")
}

func TestFilterSubsetOfUniverse(t *testing.T) {
	tbl := Table{}
	for i, p := range []float64{0.001, 0.02, 0.3, 0.04, 0.9} {
		tbl.Rows = append(tbl.Rows, row(string(rune('A'+i)), p, float64(i)-2, ""))
	}
	sel := Filter(tbl, DefaultThresholds())
	universe := map[string]bool{}
	for _, id := range sel.Universe {
		universe[id] = true
	}
	for _, id := range sel.Significant {
		assert.True(t, universe[id])
	}
	assert.Less(t, len(sel.Significant), len(sel.Universe))
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": Either, "UP": Up, "down": Down, "both": Either} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
