package annotation

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/integrations/biomart"
)

// FileMapper serves cross-references from a static TSV with the BioMart
// column names as header: ensembl_gene_id, external_gene_name,
// entrezgene_id. The file is parsed on first use.
type FileMapper struct {
	name string
	open func() (io.ReadCloser, error)

	once sync.Once
	all  CrossRef
	err  error
}

// NewFileMapper reads the mapping at path.
func NewFileMapper(path string) *FileMapper {
	return NewFileMapperFunc(path, func() (io.ReadCloser, error) { return os.Open(path) })
}

// NewFileMapperFunc reads the mapping from whatever open returns; name is
// used in error messages.
func NewFileMapperFunc(name string, open func() (io.ReadCloser, error)) *FileMapper {
	return &FileMapper{name: name, open: open}
}

func (m *FileMapper) Map(ctx context.Context, ids []string) (CrossRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.once.Do(m.load)
	if m.err != nil {
		return nil, m.err
	}
	out := make(CrossRef, len(ids))
	for _, id := range ids {
		if es, ok := m.all[normalize(id)]; ok {
			out[normalize(id)] = es
		}
	}
	return out, nil
}

func (m *FileMapper) load() {
	rc, err := m.open()
	if err != nil {
		m.err = errors.Wrap(errors.ErrCodeFileNotFound, err, "mapping file %s", m.name)
		return
	}
	defer rc.Close()
	m.all, m.err = ReadMapping(rc)
	if m.err != nil {
		m.err = errors.Wrap(errors.ErrCodeInvalidFormat, m.err, "mapping file %s", m.name)
	}
}

// ReadMapping parses a mapping TSV. Columns are matched by header name.
func ReadMapping(r io.Reader) (CrossRef, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	idCol, ok := col[biomart.AttrEnsemblID]
	if !ok {
		return nil, fmt.Errorf("missing %s column", biomart.AttrEnsemblID)
	}

	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	x := CrossRef{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if idCol >= len(rec) {
			continue
		}
		x.Add(rec[idCol], Entry{
			Symbol: field(rec, biomart.AttrSymbol),
			AltID:  field(rec, biomart.AttrEntrezID),
		})
	}
	return x, nil
}

// WriteMapping writes x in the format read by ReadMapping, with IDs in the
// given order. It is used to snapshot a remote lookup for offline use.
func WriteMapping(w io.Writer, ids []string, x CrossRef) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{biomart.AttrEnsemblID, biomart.AttrSymbol, biomart.AttrEntrezID}); err != nil {
		return err
	}
	for _, id := range ids {
		for _, e := range x[normalize(id)] {
			if err := cw.Write([]string{normalize(id), e.Symbol, e.AltID}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
