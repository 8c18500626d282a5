package dataset

import (
	"fmt"
	"slices"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// Factor is a categorical covariate. Levels[0] is the reference level.
type Factor struct {
	Name   string
	Levels []string
	Values []string
}

// NewFactor builds a factor whose levels are the sorted distinct values,
// the same default ordering R uses.
func NewFactor(name string, values []string) *Factor {
	levels := slices.Clone(values)
	slices.Sort(levels)
	return &Factor{Name: name, Levels: slices.Compact(levels), Values: slices.Clone(values)}
}

// Reference returns the reference level.
func (f *Factor) Reference() string {
	if len(f.Levels) == 0 {
		return ""
	}
	return f.Levels[0]
}

// Index returns the level index of every value.
func (f *Factor) Index() []int {
	out := make([]int, len(f.Values))
	for i, v := range f.Values {
		out[i] = slices.Index(f.Levels, v)
	}
	return out
}

// Clone returns a deep copy of f.
func (f *Factor) Clone() *Factor {
	return &Factor{Name: f.Name, Levels: slices.Clone(f.Levels), Values: slices.Clone(f.Values)}
}

// Validate checks that levels are distinct and every value is a level.
func (f *Factor) Validate() error {
	seen := make(map[string]bool, len(f.Levels))
	for _, l := range f.Levels {
		if seen[l] {
			return fmt.Errorf("factor %s: duplicate level %q", f.Name, l)
		}
		seen[l] = true
	}
	for _, v := range f.Values {
		if !seen[v] {
			return fmt.Errorf("factor %s: value %q is not a level", f.Name, v)
		}
	}
	return nil
}

// Relevel returns a copy of t whose column uses the given level order.
// levels must be exactly a permutation of the existing levels; partial,
// extended or duplicated lists are rejected with ErrCodeInvalidLevels so
// that no sample is silently relabeled.
func Relevel(t SampleTable, column string, levels []string) (SampleTable, error) {
	f, ok := t.Columns[column]
	if !ok {
		return SampleTable{}, errors.New(errors.ErrCodeInvalidLevels, "unknown column %q", column)
	}
	if !isPermutation(f.Levels, levels) {
		return SampleTable{}, errors.New(errors.ErrCodeInvalidLevels,
			"levels %v are not a permutation of %s levels %v", levels, column, f.Levels)
	}

	out := t.Clone()
	out.Columns[column].Levels = slices.Clone(levels)
	return out, nil
}

// RelevelReference moves ref to the front of column's levels and keeps the
// relative order of the rest.
func RelevelReference(t SampleTable, column, ref string) (SampleTable, error) {
	f, ok := t.Columns[column]
	if !ok {
		return SampleTable{}, errors.New(errors.ErrCodeInvalidLevels, "unknown column %q", column)
	}
	if !slices.Contains(f.Levels, ref) {
		return SampleTable{}, errors.New(errors.ErrCodeInvalidLevels,
			"reference %q is not a level of %s %v", ref, column, f.Levels)
	}

	levels := []string{ref}
	for _, l := range f.Levels {
		if l != ref {
			levels = append(levels, l)
		}
	}
	return Relevel(t, column, levels)
}

func isPermutation(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	a, b := slices.Clone(have), slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b) && len(slices.Compact(b)) == len(want)
}
