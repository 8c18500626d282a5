package results

import (
	"fmt"
	"strings"
)

// Key selects the secondary identifier used for deduplication and gene
// selection.
type Key string

const (
	KeyAltID  Key = "altId"
	KeySymbol Key = "symbol"
	KeyID     Key = "id"
)

// ParseKey parses a key name. The empty string selects KeyAltID.
func ParseKey(s string) (Key, error) {
	switch Key(strings.TrimSpace(s)) {
	case "", KeyAltID, "altid", "alt_id", "entrez":
		return KeyAltID, nil
	case KeySymbol:
		return KeySymbol, nil
	case KeyID:
		return KeyID, nil
	}
	return "", fmt.Errorf("unknown key %q (want altId, symbol or id)", s)
}

// Value returns r's identifier for key k.
func (r Row) Value(k Key) string {
	switch k {
	case KeySymbol:
		return r.Symbol
	case KeyID:
		return r.ID
	default:
		return r.AltID
	}
}

// ValueOrID returns the identifier for k, or the primary ID when it is empty.
func (r Row) ValueOrID(k Key) string {
	if v := r.Value(k); v != "" {
		return v
	}
	return r.ID
}

// CleanOptions controls Clean.
type CleanOptions struct {
	Key            Key
	DropMissingKey bool
}

// Clean drops rows with a missing adjusted p-value, optionally drops rows
// with an empty key, and keeps one row per key value: the one with the
// smallest padj, the earliest on ties. Surviving rows keep their input
// order. Rows with an empty key are never grouped with each other.
// Clean is idempotent.
func Clean(t Table, opts CleanOptions) Table {
	key := opts.Key
	if key == "" {
		key = KeyAltID
	}

	best := make(map[string]int)
	kept := make([]Row, 0, len(t.Rows))
	dropped := make([]bool, 0, len(t.Rows))
	for _, r := range t.Rows {
		if Missing(r.PAdj) {
			continue
		}
		v := r.Value(key)
		if v == "" && opts.DropMissingKey {
			continue
		}
		if v != "" {
			if i, ok := best[v]; ok {
				if !(r.PAdj < kept[i].PAdj) {
					continue
				}
				dropped[i] = true
			}
			best[v] = len(kept)
		}
		kept = append(kept, r)
		dropped = append(dropped, false)
	}

	out := Table{Coefficient: t.Coefficient, Rows: make([]Row, 0, len(kept))}
	for i, r := range kept {
		if !dropped[i] {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
