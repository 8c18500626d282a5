package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/matzehuels/exprflow/pkg/cache"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/integrations"
)

// IsRemote reports whether source is an http(s) URL rather than a file.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// FetchGMT downloads a GMT collection, caching the raw text for
// cache.TTLGeneSets. If refresh is true the cached copy is ignored.
func FetchGMT(ctx context.Context, c cache.Cache, rawURL string, refresh bool, opts ...integrations.Option) (GeneSets, error) {
	if err := errors.ValidateURL(rawURL); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "gene sets %q", rawURL)
	}
	client := integrations.NewClient(c, "genesets:", cache.TTLGeneSets, nil, opts...)

	var body string
	err := client.Cached(ctx, cache.NewDefaultKeyer().HTTPKey("gmt", rawURL), refresh, &body, func() error {
		var err error
		body, err = client.GetText(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch gene sets: %w", err)
	}
	return ReadGMT(strings.NewReader(body))
}
