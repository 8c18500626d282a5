package enrich

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/stats"
)

func genes(prefix string, from, to int) []string {
	var out []string
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

// A universe of 100 genes g0..g99; g0..g9 are significant.
func fixture() (GeneSets, results.Selection) {
	sets := GeneSets{
		{ID: "HIT", Description: "contains all significant genes", Genes: genes("g", 0, 12)},
		{ID: "MISS", Description: "no significant genes", Genes: genes("g", 50, 70)},
		{ID: "PARTIAL", Description: "a few hits", Genes: append(genes("g", 8, 10), genes("g", 30, 50)...)},
		{ID: "SMALL", Description: "under min size", Genes: genes("g", 0, 5)},
		{ID: "OUTSIDE", Description: "genes not in the universe", Genes: genes("x", 0, 20)},
	}
	sel := results.Selection{
		Significant: genes("g", 0, 10),
		Universe:    append(genes("g", 0, 100), genes("unannotated", 0, 50)...),
	}
	return sets, sel
}

func TestReadGMT(t *testing.T) {
	in := "SET_A\tfirst set\tg1\tg2\tg2\n\n# comment\nSET_B\tsecond\tg3\n"
	sets, err := ReadGMT(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, []string{"g1", "g2"}, sets[0].Genes)
	assert.Equal(t, "second", sets[1].Description)

	var buf bytes.Buffer
	require.NoError(t, WriteGMT(&buf, sets))
	again, err := ReadGMT(&buf)
	require.NoError(t, err)
	assert.Equal(t, sets, again)

	_, err = ReadGMT(strings.NewReader("ONLY_NAME\n"))
	assert.Error(t, err)
	_, err = ReadGMT(strings.NewReader("A\td\tg\nA\td\tg\n"))
	assert.Error(t, err)
}

func TestORA(t *testing.T) {
	sets, sel := fixture()
	res, err := NewORA(sets).Test(context.Background(), sel)
	require.NoError(t, err)

	// Annotated universe genes: g0..g11, g30..g49 and g50..g69.
	assert.Equal(t, 52, res.Universe)
	assert.Equal(t, 10, res.Selected)
	assert.Equal(t, 2, res.Tested, "HIT and PARTIAL have hits and pass the size filter")

	require.NotEmpty(t, res.Rows)
	top := res.Rows[0]
	assert.Equal(t, "HIT", top.ID)
	assert.Equal(t, "10/10", top.GeneRatio)
	assert.Equal(t, "12/52", top.BgRatio)
	assert.Equal(t, 1.0, top.Ratio)
	assert.Equal(t, 10, top.Count)
	assert.InDelta(t, stats.HypergeomUpper(10, 52, 12, 10), top.PValue, 1e-15)
	assert.LessOrEqual(t, top.PValue, top.PAdj)

	for _, r := range res.Rows {
		assert.NotEqual(t, "MISS", r.ID)
		assert.NotEqual(t, "SMALL", r.ID)
		assert.NotEqual(t, "OUTSIDE", r.ID)
	}
}

func TestORAEmptySelection(t *testing.T) {
	sets, sel := fixture()
	sel.Significant = nil
	res, err := NewORA(sets).Test(context.Background(), sel)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)
}

func TestORANoPassingSets(t *testing.T) {
	sets, sel := fixture()
	o := NewORA(sets)
	o.MinSize = 400
	o.MaxSize = 500
	res, err := o.Test(context.Background(), sel)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Zero(t, res.Tested)
}

func TestORASortedByPValue(t *testing.T) {
	sets, sel := fixture()
	o := NewORA(sets)
	o.PValueCutoff, o.PAdjCutoff = 1, 1
	res, err := o.Test(context.Background(), sel)
	require.NoError(t, err)
	for i := 1; i < len(res.Rows); i++ {
		assert.LessOrEqual(t, res.Rows[i-1].PValue, res.Rows[i].PValue)
	}
	assert.Len(t, res.Top(1), 1)
	assert.Len(t, res.Top(0), len(res.Rows))
}

func TestResultTSVRoundTrip(t *testing.T) {
	sets, sel := fixture()
	o := NewORA(sets)
	o.PValueCutoff, o.PAdjCutoff = 1, 1
	res, err := o.Test(context.Background(), sel)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, res))
	got, err := ReadTSV(&buf)
	require.NoError(t, err)
	require.Len(t, got.Rows, len(res.Rows))
	for i := range res.Rows {
		assert.Equal(t, res.Rows[i].ID, got.Rows[i].ID)
		assert.Equal(t, res.Rows[i].Genes, got.Rows[i].Genes)
		assert.Equal(t, res.Rows[i].PAdj, got.Rows[i].PAdj)
		assert.Equal(t, res.Rows[i].Ratio, got.Rows[i].Ratio)
	}

	empty, err := ReadTSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)

	_, err = ReadTSV(strings.NewReader("Description\nfoo\n"))
	assert.Error(t, err)
}
