package results

import (
	"fmt"
	"math"
	"strings"
)

// Direction restricts the sign of significant fold changes.
type Direction string

const (
	Either Direction = "either"
	Up     Direction = "up"
	Down   Direction = "down"
)

// ParseDirection parses a direction name. The empty string selects Either.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "", Either, "both":
		return Either, nil
	case Up, Down:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q (want either, up or down)", s)
}

// Thresholds are the significance cutoffs of Filter.
type Thresholds struct {
	PAdj      float64
	Log2FC    float64
	Direction Direction
	Key       Key
}

// DefaultThresholds returns padj < 0.05 and |log2FC| > 1 keyed by AltID.
func DefaultThresholds() Thresholds {
	return Thresholds{PAdj: 0.05, Log2FC: 1, Direction: Either, Key: KeyAltID}
}

// Selection is the gene subset handed to enrichment.
type Selection struct {
	Key         Key
	Significant []string
	Universe    []string
}

// Passes reports whether r passes the thresholds. Both comparisons are
// strict; a missing padj or fold change never passes.
func (th Thresholds) Passes(r Row) bool {
	if Missing(r.PAdj) || Missing(r.Log2FoldChange) || !(r.PAdj < th.PAdj) {
		return false
	}
	switch th.Direction {
	case Up:
		return r.Log2FoldChange > th.Log2FC
	case Down:
		return r.Log2FoldChange < -th.Log2FC
	default:
		return math.Abs(r.Log2FoldChange) > th.Log2FC
	}
}

// Filter returns the identifiers of rows passing th, and every identifier
// of t as the universe. Identifiers come from th.Key and fall back to the
// primary ID when the key is empty. Both lists are deduplicated in row
// order.
func Filter(t Table, th Thresholds) Selection {
	key := th.Key
	if key == "" {
		key = KeyAltID
	}
	sel := Selection{Key: key}
	seenU := make(map[string]bool, len(t.Rows))
	seenS := make(map[string]bool)
	for _, r := range t.Rows {
		id := r.ValueOrID(key)
		if !seenU[id] {
			seenU[id] = true
			sel.Universe = append(sel.Universe, id)
		}
		if th.Passes(r) && !seenS[id] {
			seenS[id] = true
			sel.Significant = append(sel.Significant, id)
		}
	}
	return sel
}
