package biomart

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/cache"
	"github.com/matzehuels/exprflow/pkg/integrations"
)

var table = map[string]string{
	"ENSG00000141510": "ENSG00000141510\tTP53\t7157",
	"ENSG00000012048": "ENSG00000012048\tBRCA1\t672",
	"ENSG00000146648": "ENSG00000146648\tEGFR\t1956",
}

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var q xmlQuery
		raw := r.URL.Query().Get("query")
		raw = strings.Replace(raw, "<!DOCTYPE Query>", "", 1)
		if err := xml.Unmarshal([]byte(raw), &q); err != nil {
			t.Errorf("bad query xml: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, id := range strings.Split(q.Dataset.Filters[0].Value, ",") {
			if line, ok := table[id]; ok {
				w.Write([]byte(line + "\n"))
			}
		}
	}))
}

func newTestClient(t *testing.T, url string, batch int) *Client {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewClient(c, Options{
		URL:         url,
		BatchSize:   batch,
		Rate:        -1,
		HTTPOptions: []integrations.Option{integrations.WithRetry(2, time.Millisecond)},
	})
}

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery("hsapiens_gene_ensembl", []string{"ENSG1", "ENSG2"})
	require.NoError(t, err)

	assert.Contains(t, q, `<Dataset name="hsapiens_gene_ensembl" interface="default">`)
	assert.Contains(t, q, `<Filter name="ensembl_gene_id" value="ENSG1,ENSG2"></Filter>`)
	assert.Contains(t, q, `formatter="TSV"`)
	for _, a := range []string{AttrEnsemblID, AttrSymbol, AttrEntrezID} {
		assert.Contains(t, q, `<Attribute name="`+a+`">`)
	}
}

func TestParseTSV(t *testing.T) {
	recs, err := ParseTSV("ENSG1\tTP53\t7157\nENSG2\tBRCA1\t\n\nENSG3\n")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, Record{"ENSG1", "TP53", "7157"}, recs[0])
	assert.Equal(t, Record{"ENSG2", "BRCA1", ""}, recs[1])
	assert.Equal(t, Record{"ENSG3", "", ""}, recs[2])

	_, err = ParseTSV("Query ERROR: caught BioMart::Exception::Usage: Filter foo NOT FOUND")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	recs, err := c.Lookup(context.Background(), []string{
		"ENSG00000141510.17", "ENSG00000012048", "ENSG00000146648", "ENSG00000141510", "ENSG99999999999",
	}, false)
	require.NoError(t, err)

	got := map[string]string{}
	for _, r := range recs {
		got[r.EnsemblID] = r.Symbol
	}
	assert.Equal(t, map[string]string{
		"ENSG00000141510": "TP53",
		"ENSG00000012048": "BRCA1",
		"ENSG00000146648": "EGFR",
	}, got)
	assert.Equal(t, int32(2), hits.Load(), "four unique IDs in batches of two")

	_, err = c.Lookup(context.Background(), []string{"ENSG00000141510", "ENSG00000012048", "ENSG00000146648", "ENSG99999999999"}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "second lookup should be served from cache")

	_, err = c.Lookup(context.Background(), []string{"ENSG00000141510"}, true)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load(), "refresh should bypass the cache")
}

func TestLookupServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Lookup(context.Background(), []string{"ENSG00000141510"}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, integrations.ErrNetwork))
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(cache.NewNullCache(), Options{})
	assert.Equal(t, DefaultURL, c.baseURL)
	assert.Equal(t, DefaultDataset, c.Dataset())
	assert.Equal(t, DefaultBatchSize, c.batchSize)
}
