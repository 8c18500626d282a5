package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

func newTSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.ReuseRecord = false
	return cr
}

// ReadCounts parses a count matrix. The header row names the samples
// after a leading feature-id column; every other row is one feature.
// Integral floats such as "12.0" are accepted.
func ReadCounts(r io.Reader) (*CountMatrix, error) {
	cr := newTSVReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty count matrix")
	}
	if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("count matrix header has no sample columns")
	}

	m := &CountMatrix{Samples: trimAll(header[1:])}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]int64, len(rec)-1)
		for j, field := range rec[1:] {
			v, err := parseCount(field)
			if err != nil {
				return nil, fmt.Errorf("feature %s sample %s: %w", rec[0], m.Samples[j], err)
			}
			row[j] = v
		}
		m.Features = append(m.Features, strings.TrimSpace(rec[0]))
		m.Counts = append(m.Counts, row)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("count %q is not an integer", s)
	}
	return int64(f), nil
}

// ReadSamples parses a sample table. The first column holds sample IDs,
// the remaining columns are categorical covariates with levels in sorted
// order.
func ReadSamples(r io.Reader) (SampleTable, error) {
	cr := newTSVReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return SampleTable{}, fmt.Errorf("empty sample table")
	}
	if err != nil {
		return SampleTable{}, err
	}
	header = trimAll(header)

	cols := make([][]string, len(header)-1)
	var samples []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return SampleTable{}, err
		}
		samples = append(samples, strings.TrimSpace(rec[0]))
		for j := range cols {
			cols[j] = append(cols[j], strings.TrimSpace(rec[j+1]))
		}
	}
	if err := unique("sample", samples); err != nil {
		return SampleTable{}, err
	}

	t := SampleTable{Samples: samples, Columns: make(map[string]*Factor, len(cols))}
	for j, name := range header[1:] {
		t.Columns[name] = NewFactor(name, cols[j])
		t.Order = append(t.Order, name)
	}
	return t, nil
}

// WriteSamples writes t in the format read by ReadSamples.
func WriteSamples(w io.Writer, t SampleTable) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(append([]string{"sample"}, t.Order...)); err != nil {
		return err
	}
	for i, s := range t.Samples {
		rec := []string{s}
		for _, name := range t.Order {
			rec = append(rec, t.Columns[name].Values[i])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func trimAll(xs []string) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = strings.TrimSpace(x)
	}
	return out
}
