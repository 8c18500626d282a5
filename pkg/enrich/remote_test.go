package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/cache"
	"github.com/matzehuels/exprflow/pkg/errors"
)

func TestFetchGMTCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "SET_A\tfirst\tg1\tg2\nSET_B\tsecond\tg3\n")
	}))
	defer srv.Close()

	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	sets, err := FetchGMT(ctx, c, srv.URL+"/sets.gmt", false)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, []string{"g1", "g2"}, sets[0].Genes)

	sets, err = FetchGMT(ctx, c, srv.URL+"/sets.gmt", false)
	require.NoError(t, err)
	assert.Len(t, sets, 2)
	assert.Equal(t, int32(1), calls.Load(), "second fetch is served from cache")

	_, err = FetchGMT(ctx, c, srv.URL+"/sets.gmt", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "refresh bypasses cache")
}

func TestFetchGMTRejectsNonHTTP(t *testing.T) {
	_, err := FetchGMT(context.Background(), nil, "ftp://example.org/sets.gmt", false)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.True(t, IsRemote("https://example.org/x.gmt"))
	assert.False(t, IsRemote("sets.gmt"))
}
