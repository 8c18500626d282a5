// Package dataset loads RNA-seq count matrices and sample metadata.
//
// A dataset is distributed as a bundle: a directory holding a bundle.toml
// manifest next to the count matrix, the sample table and optional gene-set
// and identifier-mapping files. Bundles shipped with the binary are
// addressed as "builtin:<name>"; anything else is a directory path.
//
//	b, err := dataset.Load(ctx, "builtin:airway-mini")
//	samples, err := dataset.RelevelReference(b.Samples, b.Manifest.Condition, "untrt")
package dataset

import (
	"fmt"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// CountMatrix holds raw read counts, one row per feature and one column
// per sample.
type CountMatrix struct {
	Features []string
	Samples  []string
	Counts   [][]int64
}

// NumFeatures returns the number of rows.
func (m *CountMatrix) NumFeatures() int { return len(m.Features) }

// NumSamples returns the number of columns.
func (m *CountMatrix) NumSamples() int { return len(m.Samples) }

// Row returns the counts of feature i. The slice is shared with m.
func (m *CountMatrix) Row(i int) []int64 { return m.Counts[i] }

// Column returns a copy of the counts of sample s.
func (m *CountMatrix) Column(s string) ([]int64, bool) {
	j := indexOf(m.Samples, s)
	if j < 0 {
		return nil, false
	}
	col := make([]int64, len(m.Features))
	for i, row := range m.Counts {
		col[i] = row[j]
	}
	return col, true
}

// Clone returns a deep copy of m.
func (m *CountMatrix) Clone() *CountMatrix {
	out := &CountMatrix{
		Features: append([]string(nil), m.Features...),
		Samples:  append([]string(nil), m.Samples...),
		Counts:   make([][]int64, len(m.Counts)),
	}
	for i, row := range m.Counts {
		out.Counts[i] = append([]int64(nil), row...)
	}
	return out
}

// Validate checks the matrix invariants: unique feature and sample IDs,
// rectangular shape and non-negative counts.
func (m *CountMatrix) Validate() error {
	if err := unique("feature", m.Features); err != nil {
		return err
	}
	if err := unique("sample", m.Samples); err != nil {
		return err
	}
	if len(m.Counts) != len(m.Features) {
		return fmt.Errorf("%d count rows for %d features", len(m.Counts), len(m.Features))
	}
	for i, row := range m.Counts {
		if len(row) != len(m.Samples) {
			return fmt.Errorf("feature %s: %d counts for %d samples", m.Features[i], len(row), len(m.Samples))
		}
		for j, c := range row {
			if c < 0 {
				return fmt.Errorf("feature %s sample %s: negative count %d", m.Features[i], m.Samples[j], c)
			}
		}
	}
	return nil
}

// SampleTable holds categorical covariates, one row per sample.
type SampleTable struct {
	Samples []string
	Columns map[string]*Factor

	// Order lists the column names in file order.
	Order []string
}

// Factor returns the named covariate.
func (t SampleTable) Factor(name string) (*Factor, bool) {
	f, ok := t.Columns[name]
	return f, ok
}

// Clone returns a deep copy of t.
func (t SampleTable) Clone() SampleTable {
	out := SampleTable{
		Samples: append([]string(nil), t.Samples...),
		Columns: make(map[string]*Factor, len(t.Columns)),
		Order:   append([]string(nil), t.Order...),
	}
	for k, f := range t.Columns {
		out.Columns[k] = f.Clone()
	}
	return out
}

// Subset returns the rows of t for samples, in that order. It fails if a
// sample has no row.
func (t SampleTable) Subset(samples []string) (SampleTable, error) {
	idx := make([]int, len(samples))
	for i, s := range samples {
		j := indexOf(t.Samples, s)
		if j < 0 {
			return SampleTable{}, fmt.Errorf("sample %q has no metadata row", s)
		}
		idx[i] = j
	}

	out := SampleTable{
		Samples: append([]string(nil), samples...),
		Columns: make(map[string]*Factor, len(t.Columns)),
		Order:   append([]string(nil), t.Order...),
	}
	for name, f := range t.Columns {
		vals := make([]string, len(idx))
		for i, j := range idx {
			vals[i] = f.Values[j]
		}
		out.Columns[name] = &Factor{Name: f.Name, Levels: append([]string(nil), f.Levels...), Values: vals}
	}
	return out, nil
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}

func unique(kind string, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if err := errors.ValidateIdentifier(kind, id); err != nil {
			return err
		}
		if seen[id] {
			return fmt.Errorf("duplicate %s id %q", kind, id)
		}
		seen[id] = true
	}
	return nil
}
