package model

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/exprflow/pkg/dataset"
	"github.com/matzehuels/exprflow/pkg/errors"
)

// InterceptName is the name of the intercept coefficient.
const InterceptName = "Intercept"

// Formula is a parsed design formula such as "~ cell + dex". The
// intercept is implied; the last term is the variable of interest.
type Formula struct {
	Terms []string
}

// ParseFormula parses "~ a + b". Interaction terms, transformations and
// intercept removal are not supported.
func ParseFormula(s string) (Formula, error) {
	rhs, ok := strings.CutPrefix(strings.TrimSpace(s), "~")
	if !ok {
		return Formula{}, errors.New(errors.ErrCodeInvalidFormula, "formula %q must start with ~", s)
	}
	var f Formula
	seen := map[string]bool{}
	for _, part := range strings.Split(rhs, "+") {
		term := strings.TrimSpace(part)
		switch {
		case term == "":
			return Formula{}, errors.New(errors.ErrCodeInvalidFormula, "formula %q has an empty term", s)
		case term == "1":
			continue
		case strings.ContainsAny(term, ":*()-^ "):
			return Formula{}, errors.New(errors.ErrCodeUnsupported, "formula term %q: only plain factor names are supported", term)
		case seen[term]:
			return Formula{}, errors.New(errors.ErrCodeInvalidFormula, "formula %q repeats term %q", s, term)
		}
		seen[term] = true
		f.Terms = append(f.Terms, term)
	}
	if len(f.Terms) == 0 {
		return Formula{}, errors.New(errors.ErrCodeInvalidFormula, "formula %q has no terms", s)
	}
	return f, nil
}

// String renders the formula in canonical form.
func (f Formula) String() string {
	return "~ " + strings.Join(f.Terms, " + ")
}

// Last returns the variable of interest.
func (f Formula) Last() string { return f.Terms[len(f.Terms)-1] }

// Design binds counts, sample metadata and a formula.
type Design struct {
	Formula Formula
	Counts  *dataset.CountMatrix
	Samples dataset.SampleTable
}

// NewDesign validates that every formula term is a factor of samples and
// that samples is aligned with the count matrix columns.
func NewDesign(counts *dataset.CountMatrix, samples dataset.SampleTable, formula string) (Design, error) {
	f, err := ParseFormula(formula)
	if err != nil {
		return Design{}, err
	}
	for _, term := range f.Terms {
		fac, ok := samples.Columns[term]
		if !ok {
			return Design{}, errors.New(errors.ErrCodeInvalidFormula, "formula term %q is not a sample column", term)
		}
		if len(fac.Levels) < 2 {
			return Design{}, errors.New(errors.ErrCodeInvalidFormula, "factor %q needs at least two levels, has %v", term, fac.Levels)
		}
	}
	if len(samples.Samples) != counts.NumSamples() {
		return Design{}, errors.New(errors.ErrCodeInvalidInput, "%d metadata rows for %d count columns", len(samples.Samples), counts.NumSamples())
	}
	for i, s := range counts.Samples {
		if samples.Samples[i] != s {
			return Design{}, errors.New(errors.ErrCodeInvalidInput, "metadata row %d is %q, count column is %q", i, samples.Samples[i], s)
		}
	}
	return Design{Formula: f, Counts: counts, Samples: samples}, nil
}

// CoefficientName names the coefficient comparing level to the factor's
// reference level.
func CoefficientName(factor, level, reference string) string {
	return fmt.Sprintf("%s_%s_vs_%s", sanitize(factor), sanitize(level), sanitize(reference))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			return r
		}
		return '.'
	}, s)
}

// Matrix builds the treatment-coded model matrix: an intercept column,
// then one indicator column per non-reference level of each term.
func (d Design) Matrix() (*mat.Dense, []string) {
	names := []string{InterceptName}
	type col struct {
		factor *dataset.Factor
		level  string
	}
	var cols []col
	for _, term := range d.Formula.Terms {
		f := d.Samples.Columns[term]
		for _, lvl := range f.Levels[1:] {
			cols = append(cols, col{f, lvl})
			names = append(names, CoefficientName(term, lvl, f.Reference()))
		}
	}

	n := len(d.Samples.Samples)
	x := mat.NewDense(n, len(names), nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j, c := range cols {
			if c.factor.Values[i] == c.level {
				x.Set(i, j+1, 1)
			}
		}
	}
	return x, names
}
