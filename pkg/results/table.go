// Package results holds the per-feature differential-expression table and
// the pure transformations applied to it: cleaning, deduplication and
// significance filtering, plus TSV and JSON persistence.
//
// A missing numeric value is NaN; a missing identifier is the empty string.
package results

import (
	"math"
	"slices"
)

// Row is one feature of a result table.
type Row struct {
	ID             string
	BaseMean       float64
	Log2FoldChange float64
	LfcSE          float64
	Stat           float64
	PValue         float64
	PAdj           float64
	Symbol         string
	AltID          string
}

// Table is an ordered list of result rows.
type Table struct {
	// Coefficient names the model coefficient the table reports on.
	Coefficient string
	Rows        []Row
}

// Missing reports whether v is a missing numeric value.
func Missing(v float64) bool { return math.IsNaN(v) }

// NA is the missing numeric value.
func NA() float64 { return math.NaN() }

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Clone returns a copy of t that shares no row storage with it.
func (t Table) Clone() Table {
	return Table{Coefficient: t.Coefficient, Rows: slices.Clone(t.Rows)}
}

// IDs returns the primary identifiers in row order.
func (t Table) IDs() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.ID
	}
	return out
}

// Index returns the position of the row with primary identifier id.
func (t Table) Index(id string) int {
	return slices.IndexFunc(t.Rows, func(r Row) bool { return r.ID == id })
}

// CountMissing returns how many rows have a missing adjusted p-value.
func (t Table) CountMissing() int {
	n := 0
	for _, r := range t.Rows {
		if Missing(r.PAdj) {
			n++
		}
	}
	return n
}

// SortByPAdj returns a copy of t ordered by adjusted p-value, missing
// values last. Ties keep their input order.
func (t Table) SortByPAdj() Table {
	out := t.Clone()
	slices.SortStableFunc(out.Rows, func(a, b Row) int {
		switch {
		case Missing(a.PAdj) && Missing(b.PAdj):
			return 0
		case Missing(a.PAdj):
			return 1
		case Missing(b.PAdj):
			return -1
		case a.PAdj < b.PAdj:
			return -1
		case a.PAdj > b.PAdj:
			return 1
		}
		return 0
	})
	return out
}

// Summary counts the rows of t.
type Summary struct {
	Total      int
	MissingAdj int
	Up         int
	Down       int
}

// Summarize counts rows with missing padj and rows significant at alpha in
// each direction.
func Summarize(t Table, alpha float64) Summary {
	s := Summary{Total: len(t.Rows)}
	for _, r := range t.Rows {
		switch {
		case Missing(r.PAdj):
			s.MissingAdj++
		case r.PAdj < alpha && r.Log2FoldChange > 0:
			s.Up++
		case r.PAdj < alpha && r.Log2FoldChange < 0:
			s.Down++
		}
	}
	return s
}
