package enrich

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// GeneSet is a named collection of gene identifiers.
type GeneSet struct {
	ID          string
	Description string
	Genes       []string
}

// GeneSets is an ordered gene-set collection.
type GeneSets []GeneSet

// ReadGMT parses the GMT format: one set per line, tab separated, name
// then description then member genes. Duplicate members are dropped.
func ReadGMT(r io.Reader) (GeneSets, error) {
	var out GeneSets
	seen := map[string]bool{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("gmt line %d: want name, description and genes", line)
		}
		id := strings.TrimSpace(fields[0])
		if id == "" {
			return nil, fmt.Errorf("gmt line %d: empty set name", line)
		}
		if seen[id] {
			return nil, fmt.Errorf("gmt line %d: duplicate set %q", line, id)
		}
		seen[id] = true

		set := GeneSet{ID: id, Description: strings.TrimSpace(fields[1])}
		members := map[string]bool{}
		for _, g := range fields[2:] {
			g = strings.TrimSpace(g)
			if g == "" || members[g] {
				continue
			}
			members[g] = true
			set.Genes = append(set.Genes, g)
		}
		out = append(out, set)
	}
	return out, sc.Err()
}

// ReadGMTFile reads a GMT file from disk.
func ReadGMTFile(path string) (GeneSets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "gene sets %s", path)
	}
	defer f.Close()
	return ReadGMT(f)
}

// WriteGMT writes sets in GMT format.
func WriteGMT(w io.Writer, sets GeneSets) error {
	for _, s := range sets {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Description, strings.Join(s.Genes, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// Genes returns the union of all members.
func (gs GeneSets) Genes() map[string]bool {
	out := map[string]bool{}
	for _, s := range gs {
		for _, g := range s.Genes {
			out[g] = true
		}
	}
	return out
}
