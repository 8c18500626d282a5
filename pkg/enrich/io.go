package enrich

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var columns = []string{"ID", "Description", "GeneRatio", "BgRatio", "ratio", "pvalue", "p.adjust", "Count", "geneID"}

// WriteTSV writes r in the clusterProfiler column layout. Member genes are
// joined with "/".
func WriteTSV(w io.Writer, r Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, t := range r.Rows {
		rec := []string{
			t.ID,
			t.Description,
			t.GeneRatio,
			t.BgRatio,
			strconv.FormatFloat(t.Ratio, 'g', -1, 64),
			strconv.FormatFloat(t.PValue, 'g', -1, 64),
			strconv.FormatFloat(t.PAdj, 'g', -1, 64),
			strconv.Itoa(t.Count),
			strings.Join(t.Genes, "/"),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTSV parses a table written by WriteTSV.
func ReadTSV(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return Result{Rows: []Term{}}, nil
	}
	if err != nil {
		return Result{}, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, c := range []string{"ID", "pvalue", "p.adjust"} {
		if _, ok := col[c]; !ok {
			return Result{}, fmt.Errorf("enrichment table has no %s column", c)
		}
	}

	res := Result{Rows: []Term{}}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, err
		}
		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		t := Term{ID: get("ID"), Description: get("Description"), GeneRatio: get("GeneRatio"), BgRatio: get("BgRatio")}
		if t.PValue, err = strconv.ParseFloat(get("pvalue"), 64); err != nil {
			return Result{}, fmt.Errorf("term %s: pvalue: %w", t.ID, err)
		}
		if t.PAdj, err = strconv.ParseFloat(get("p.adjust"), 64); err != nil {
			return Result{}, fmt.Errorf("term %s: p.adjust: %w", t.ID, err)
		}
		t.Count, _ = strconv.Atoi(get("Count"))
		if g := get("geneID"); g != "" {
			t.Genes = strings.Split(g, "/")
		}
		if v, err := strconv.ParseFloat(get("ratio"), 64); err == nil {
			t.Ratio = v
		} else {
			t.Ratio = parseRatio(t.GeneRatio)
		}
		res.Rows = append(res.Rows, t)
	}
	return res, nil
}

func parseRatio(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0
	}
	a, err1 := strconv.ParseFloat(num, 64)
	b, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || b == 0 {
		return 0
	}
	return a / b
}
