package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/matzehuels/exprflow/pkg/artifact"
	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/results"
)

// Persist writes the result table, the enrichment table and every rendered
// artifact of res to sink. Tables come first so a failed plot upload still
// leaves the numbers behind.
func Persist(ctx context.Context, sink artifact.Sink, res *Result) ([]artifact.Info, error) {
	var written []artifact.Info
	put := func(name string, data []byte) error {
		info, err := sink.Put(ctx, name, data)
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, info)
		return nil
	}

	var buf bytes.Buffer
	if err := results.WriteTSV(&buf, res.Table); err != nil {
		return written, err
	}
	if err := put(FileResultsTSV, bytes.Clone(buf.Bytes())); err != nil {
		return written, err
	}

	buf.Reset()
	if err := results.WriteJSON(&buf, res.Table); err != nil {
		return written, err
	}
	if err := put(FileResultsJSON, bytes.Clone(buf.Bytes())); err != nil {
		return written, err
	}

	buf.Reset()
	if err := enrich.WriteTSV(&buf, res.Enrichment); err != nil {
		return written, err
	}
	if err := put(FileEnrichmentTSV, bytes.Clone(buf.Bytes())); err != nil {
		return written, err
	}

	names := make([]string, 0, len(res.Artifacts))
	for name := range res.Artifacts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := put(name, res.Artifacts[name]); err != nil {
			return written, err
		}
	}
	return written, nil
}
