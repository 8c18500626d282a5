package biomart

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/matzehuels/exprflow/pkg/cache"
	"github.com/matzehuels/exprflow/pkg/integrations"
)

const (
	// DefaultURL is the public Ensembl martservice endpoint.
	DefaultURL = "https://www.ensembl.org/biomart/martservice"

	// DefaultDataset is the human gene annotation dataset.
	DefaultDataset = "hsapiens_gene_ensembl"

	// DefaultBatchSize is the number of IDs sent per query.
	DefaultBatchSize = 300

	// DefaultRate is the request budget in requests per second.
	DefaultRate = 2.0

	service = "biomart"
)

// Record is one cross-reference row returned by BioMart.
type Record struct {
	EnsemblID string `json:"ensembl_gene_id"`
	Symbol    string `json:"external_gene_name"`
	EntrezID  string `json:"entrezgene_id"`
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	URL       string
	Dataset   string
	Timeout   time.Duration
	Rate      float64
	BatchSize int
	TTL       time.Duration
	Keyer     cache.Keyer

	// HTTPOptions are passed through to the shared HTTP client.
	HTTPOptions []integrations.Option
}

// Client looks up gene cross-references on a BioMart server.
type Client struct {
	*integrations.Client
	baseURL   string
	dataset   string
	batchSize int
	keyer     cache.Keyer
}

// NewClient creates a BioMart client that caches each batch response in c.
func NewClient(c cache.Cache, opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Dataset == "" {
		opts.Dataset = DefaultDataset
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Rate == 0 {
		opts.Rate = DefaultRate
	}
	if opts.TTL <= 0 {
		opts.TTL = cache.TTLMapping
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}

	httpOpts := append([]integrations.Option{
		integrations.WithTimeout(opts.Timeout),
		integrations.WithRateLimit(opts.Rate, 1),
	}, opts.HTTPOptions...)

	return &Client{
		Client:    integrations.NewClient(c, service+":", opts.TTL, nil, httpOpts...),
		baseURL:   opts.URL,
		dataset:   opts.Dataset,
		batchSize: opts.BatchSize,
		keyer:     opts.Keyer,
	}
}

// Dataset returns the BioMart dataset the client queries.
func (c *Client) Dataset() string { return c.dataset }

// Lookup returns the cross-reference rows for ids. IDs are normalized
// (whitespace and version suffix stripped) and deduplicated before the
// query. IDs BioMart does not know are simply absent from the result.
// If refresh is true, cached batches are ignored.
func (c *Client) Lookup(ctx context.Context, ids []string, refresh bool) ([]Record, error) {
	ids = uniqueIDs(ids)
	var out []Record
	for _, batch := range integrations.Batches(ids, c.batchSize) {
		recs, err := c.lookupBatch(ctx, batch, refresh)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (c *Client) lookupBatch(ctx context.Context, ids []string, refresh bool) ([]Record, error) {
	key := c.keyer.MappingKey(service, c.dataset, ids)

	var recs []Record
	err := c.Cached(ctx, key, refresh, &recs, func() error {
		query, err := BuildQuery(c.dataset, ids)
		if err != nil {
			return err
		}
		body, err := c.GetText(ctx, c.baseURL+"?query="+url.QueryEscape(query))
		if err != nil {
			return err
		}
		recs, err = ParseTSV(body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("biomart %s: %w", c.dataset, err)
	}
	return recs, nil
}

// ParseTSV parses a headerless BioMart TSV response. Missing trailing
// columns are treated as empty. BioMart reports query problems inside a
// 200 response, so a body starting with "Query ERROR" becomes an error.
func ParseTSV(body string) ([]Record, error) {
	if strings.HasPrefix(strings.TrimSpace(body), "Query ERROR") {
		return nil, fmt.Errorf("%s", strings.TrimSpace(body))
	}

	var recs []Record
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		for len(fields) < len(attributes) {
			fields = append(fields, "")
		}
		recs = append(recs, Record{
			EnsemblID: strings.TrimSpace(fields[0]),
			Symbol:    strings.TrimSpace(fields[1]),
			EntrezID:  strings.TrimSpace(fields[2]),
		})
	}
	return recs, sc.Err()
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = integrations.NormalizeID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
