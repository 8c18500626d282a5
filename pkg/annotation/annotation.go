// Package annotation maps primary feature identifiers (Ensembl gene IDs)
// to gene symbols and alternate numeric IDs (Entrez).
//
// Every source implements [Mapper]. [NewMapper] picks the implementation
// from configuration so callers never branch on where the mapping comes
// from: the BioMart service, a static TSV, or the service with the TSV as
// an offline fallback.
package annotation

import (
	"context"

	"github.com/matzehuels/exprflow/pkg/integrations"
	"github.com/matzehuels/exprflow/pkg/results"
)

// Entry is one cross-reference for a primary ID.
type Entry struct {
	Symbol string `json:"symbol"`
	AltID  string `json:"altId"`
}

// CrossRef maps a normalized primary ID to its entries in source order.
type CrossRef map[string][]Entry

// Add appends an entry for id. IDs are normalized; empty IDs are ignored.
func (x CrossRef) Add(id string, e Entry) {
	id = integrations.NormalizeID(id)
	if id == "" {
		return
	}
	x[id] = append(x[id], e)
}

// Lookup returns the first entry for id that carries an alternate ID, or
// the first entry when none does.
func (x CrossRef) Lookup(id string) (Entry, bool) {
	es := x[integrations.NormalizeID(id)]
	if len(es) == 0 {
		return Entry{}, false
	}
	for _, e := range es {
		if e.AltID != "" {
			return e, true
		}
	}
	return es[0], true
}

// Mapper resolves primary IDs to cross-references. IDs the source does not
// know are absent from the result.
type Mapper interface {
	Map(ctx context.Context, ids []string) (CrossRef, error)
}

// Join attaches symbols and alternate IDs to t as a left join. Entries are
// picked by [CrossRef.Lookup]. Unmapped rows get empty identifiers.
func Join(t results.Table, x CrossRef) results.Table {
	out := t.Clone()
	for i := range out.Rows {
		e, _ := x.Lookup(out.Rows[i].ID)
		out.Rows[i].Symbol = e.Symbol
		out.Rows[i].AltID = e.AltID
	}
	return out
}

// Unmapped returns the IDs of rows without an alternate ID.
func Unmapped(t results.Table) []string {
	var out []string
	for _, r := range t.Rows {
		if r.AltID == "" {
			out = append(out, r.ID)
		}
	}
	return out
}

// none maps nothing.
type none struct{}

func (none) Map(context.Context, []string) (CrossRef, error) { return CrossRef{}, nil }
