package annotation

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/cache"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/integrations"
	"github.com/matzehuels/exprflow/pkg/integrations/biomart"
	"github.com/matzehuels/exprflow/pkg/results"
)

const mappingTSV = "ensembl_gene_id\texternal_gene_name\tentrezgene_id\n" +
	"ENSG1\tTP53\t7157\n" +
	"ENSG2\tBRCA1\t672\n" +
	"ENSG2\tBRCA1\t99999\n" +
	"ENSG4\tORPHAN\t\n"

func fileOpener(body string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil }
}

func failingOpener() (io.ReadCloser, error) { return nil, io.ErrUnexpectedEOF }

func tableOf(ids ...string) results.Table {
	var t results.Table
	for _, id := range ids {
		t.Rows = append(t.Rows, results.Row{ID: id, PAdj: 0.01, Log2FoldChange: 2, BaseMean: math.NaN()})
	}
	return t
}

func TestFileMapper(t *testing.T) {
	m := NewFileMapperFunc("test", fileOpener(mappingTSV))
	x, err := m.Map(context.Background(), []string{"ENSG1", "ENSG2.3", "ENSG3"})
	require.NoError(t, err)

	assert.Len(t, x, 2)
	assert.Equal(t, []Entry{{"BRCA1", "672"}, {"BRCA1", "99999"}}, x["ENSG2"])
	_, ok := x.Lookup("ENSG3")
	assert.False(t, ok)
}

func TestFileMapperMissingFile(t *testing.T) {
	m := NewFileMapper("/does/not/exist.tsv")
	_, err := m.Map(context.Background(), []string{"ENSG1"})
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound), "got %v", err)
}

func TestReadMappingBadHeader(t *testing.T) {
	_, err := ReadMapping(strings.NewReader("gene\tsymbol\nG1\tX\n"))
	assert.Error(t, err)
}

func TestWriteMappingRoundTrip(t *testing.T) {
	x, err := ReadMapping(strings.NewReader(mappingTSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMapping(&buf, []string{"ENSG1", "ENSG2", "ENSG4"}, x))
	assert.Equal(t, mappingTSV, buf.String())
}

func TestLookupPrefersAltID(t *testing.T) {
	x := CrossRef{}
	x.Add("ENSG5", Entry{Symbol: "MYC"})
	x.Add("ENSG5", Entry{Symbol: "MYC", AltID: "4609"})
	x.Add("ENSG6", Entry{Symbol: "LINC1"})

	e, ok := x.Lookup("ENSG5")
	assert.True(t, ok)
	assert.Equal(t, "4609", e.AltID)

	e, ok = x.Lookup("ENSG6")
	assert.True(t, ok)
	assert.Equal(t, Entry{Symbol: "LINC1"}, e)

	out := Join(tableOf("ENSG5"), x)
	assert.Equal(t, "4609", out.Rows[0].AltID)
	assert.Empty(t, Unmapped(out))
}

func TestJoin(t *testing.T) {
	x, err := ReadMapping(strings.NewReader(mappingTSV))
	require.NoError(t, err)

	tbl := tableOf("ENSG1", "ENSG2", "ENSG3", "ENSG4")
	out := Join(tbl, x)

	assert.Equal(t, "TP53", out.Rows[0].Symbol)
	assert.Equal(t, "7157", out.Rows[0].AltID)
	assert.Equal(t, "672", out.Rows[1].AltID, "first entry wins")
	assert.Equal(t, "", out.Rows[2].Symbol)
	assert.Equal(t, "ORPHAN", out.Rows[3].Symbol)
	assert.Equal(t, []string{"ENSG3", "ENSG4"}, Unmapped(out))

	assert.Equal(t, "", tbl.Rows[0].Symbol, "input is not mutated")
	assert.Equal(t, 4, out.Len(), "left join keeps every row")
}

type failMapper struct{ calls int }

func (f *failMapper) Map(context.Context, []string) (CrossRef, error) {
	f.calls++
	return nil, cache.Retryable(integrations.ErrNetwork)
}

func TestFallbackUsesFile(t *testing.T) {
	primary := &failMapper{}
	m := &FallbackMapper{Primary: primary, Fallback: NewFileMapperFunc("f", fileOpener(mappingTSV))}

	x, err := m.Map(context.Background(), []string{"ENSG1"})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	e, ok := x.Lookup("ENSG1")
	require.True(t, ok)
	assert.Equal(t, "TP53", e.Symbol)
}

func TestFallbackBothFail(t *testing.T) {
	m := &FallbackMapper{Primary: &failMapper{}, Fallback: NewFileMapperFunc("f", failingOpener)}

	x, err := m.Map(context.Background(), []string{"ENSG1", "ENSG2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeMappingUnavailable))
	assert.False(t, errors.IsFatal(err), "mapping failures are warnings")
	assert.NotNil(t, x)
	assert.Empty(t, x)

	out := Join(tableOf("ENSG1"), x)
	assert.Equal(t, []string{"ENSG1"}, Unmapped(out))
}

func TestFallbackNoFallback(t *testing.T) {
	m := &FallbackMapper{Primary: &failMapper{}}
	_, err := m.Map(context.Background(), []string{"ENSG1"})
	assert.True(t, errors.Is(err, errors.ErrCodeMappingUnavailable))
}

func TestRemoteMapperFallsBackWhenServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := biomart.NewClient(cache.NewNullCache(), biomart.Options{
		URL:         srv.URL,
		Rate:        -1,
		HTTPOptions: []integrations.Option{integrations.WithRetry(2, time.Millisecond)},
	})
	m, err := NewMapper(Config{Source: SourceAuto, Remote: client, File: fileOpener(mappingTSV), FileName: "offline"})
	require.NoError(t, err)

	x, err := m.Map(context.Background(), []string{"ENSG1"})
	require.NoError(t, err)
	_, ok := x.Lookup("ENSG1")
	assert.True(t, ok)
}

func TestRemoteMapper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ENSG1\tTP53\t7157\n"))
	}))
	defer srv.Close()

	client := biomart.NewClient(cache.NewNullCache(), biomart.Options{URL: srv.URL, Rate: -1})
	x, err := NewRemoteMapper(client).Map(context.Background(), []string{"ENSG1"})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"TP53", "7157"}}, x["ENSG1"])
}

func TestNewMapper(t *testing.T) {
	_, err := NewMapper(Config{Source: SourceFile})
	assert.Error(t, err)

	_, err = NewMapper(Config{Source: SourceRemote})
	assert.Error(t, err)

	_, err = NewMapper(Config{Source: "ftp"})
	assert.Error(t, err)

	m, err := NewMapper(Config{Source: SourceNone})
	require.NoError(t, err)
	x, err := m.Map(context.Background(), []string{"ENSG1"})
	require.NoError(t, err)
	assert.Empty(t, x)

	m, err = NewMapper(Config{Source: SourceFile, File: fileOpener(mappingTSV)})
	require.NoError(t, err)
	x, err = m.Map(context.Background(), []string{"ENSG1"})
	require.NoError(t, err)
	assert.Len(t, x, 1)
}
