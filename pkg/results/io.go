package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Columns are the TSV columns in output order.
var Columns = []string{"id", "baseMean", "log2FoldChange", "lfcSE", "stat", "pvalue", "padj", "symbol", "altId"}

// NAString denotes a missing value in TSV files.
const NAString = "NA"

// WriteTSV writes t with a header row. Missing values are written as NA.
func WriteTSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range t.Rows {
		rec := []string{
			r.ID,
			formatFloat(r.BaseMean),
			formatFloat(r.Log2FoldChange),
			formatFloat(r.LfcSE),
			formatFloat(r.Stat),
			formatFloat(r.PValue),
			formatFloat(r.PAdj),
			formatString(r.Symbol),
			formatString(r.AltID),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTSV parses a table written by WriteTSV. Columns are matched by
// header name; only "id" is required. NA, NaN and empty cells are missing.
func ReadTSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return Table{}, fmt.Errorf("empty results file")
	}
	if err != nil {
		return Table{}, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["id"]; !ok {
		return Table{}, fmt.Errorf("results file has no id column")
	}

	var t Table
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, err
		}
		line++

		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		num := func(name string) (float64, error) {
			v, err := parseFloat(get(name))
			if err != nil {
				return 0, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			return v, nil
		}

		row := Row{ID: get("id"), Symbol: parseString(get("symbol")), AltID: parseString(get("altId"))}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"baseMean", &row.BaseMean},
			{"log2FoldChange", &row.Log2FoldChange},
			{"lfcSE", &row.LfcSE},
			{"stat", &row.Stat},
			{"pvalue", &row.PValue},
			{"padj", &row.PAdj},
		} {
			if *f.dst, err = num(f.name); err != nil {
				return Table{}, err
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile reads a table from a .tsv or .json file.
func ReadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ReadJSON(f)
	}
	return ReadTSV(f)
}

// WriteFile writes t as TSV, or JSON when path ends in .json.
func WriteFile(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = WriteJSON(f, t)
	} else {
		err = WriteTSV(f, t)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

type jsonTable struct {
	Coefficient string    `json:"coefficient,omitempty"`
	Rows        []jsonRow `json:"rows"`
}

type jsonRow struct {
	ID             string   `json:"id"`
	BaseMean       *float64 `json:"baseMean"`
	Log2FoldChange *float64 `json:"log2FoldChange"`
	LfcSE          *float64 `json:"lfcSE"`
	Stat           *float64 `json:"stat"`
	PValue         *float64 `json:"pvalue"`
	PAdj           *float64 `json:"padj"`
	Symbol         string   `json:"symbol,omitempty"`
	AltID          string   `json:"altId,omitempty"`
}

// WriteJSON writes t as a JSON document. Missing values become null.
func WriteJSON(w io.Writer, t Table) error {
	doc := jsonTable{Coefficient: t.Coefficient, Rows: make([]jsonRow, len(t.Rows))}
	for i, r := range t.Rows {
		doc.Rows[i] = jsonRow{
			ID:             r.ID,
			BaseMean:       ptr(r.BaseMean),
			Log2FoldChange: ptr(r.Log2FoldChange),
			LfcSE:          ptr(r.LfcSE),
			Stat:           ptr(r.Stat),
			PValue:         ptr(r.PValue),
			PAdj:           ptr(r.PAdj),
			Symbol:         r.Symbol,
			AltID:          r.AltID,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ReadJSON parses a document written by WriteJSON.
func ReadJSON(r io.Reader) (Table, error) {
	var doc jsonTable
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Table{}, err
	}
	t := Table{Coefficient: doc.Coefficient, Rows: make([]Row, len(doc.Rows))}
	for i, jr := range doc.Rows {
		t.Rows[i] = Row{
			ID:             jr.ID,
			BaseMean:       deref(jr.BaseMean),
			Log2FoldChange: deref(jr.Log2FoldChange),
			LfcSE:          deref(jr.LfcSE),
			Stat:           deref(jr.Stat),
			PValue:         deref(jr.PValue),
			PAdj:           deref(jr.PAdj),
			Symbol:         jr.Symbol,
			AltID:          jr.AltID,
		}
	}
	return t, nil
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return NAString
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) (float64, error) {
	switch s {
	case "", NAString, "NaN", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatString(s string) string {
	if s == "" {
		return NAString
	}
	return s
}

func parseString(s string) string {
	if s == NAString {
		return ""
	}
	return s
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
