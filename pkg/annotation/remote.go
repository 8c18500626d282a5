package annotation

import (
	"context"

	"github.com/matzehuels/exprflow/pkg/integrations/biomart"
)

// RemoteMapper queries a BioMart server.
type RemoteMapper struct {
	Client  *biomart.Client
	Refresh bool
}

// NewRemoteMapper wraps client.
func NewRemoteMapper(client *biomart.Client) *RemoteMapper {
	return &RemoteMapper{Client: client}
}

func (m *RemoteMapper) Map(ctx context.Context, ids []string) (CrossRef, error) {
	recs, err := m.Client.Lookup(ctx, ids, m.Refresh)
	if err != nil {
		return nil, err
	}
	x := make(CrossRef, len(recs))
	for _, r := range recs {
		x.Add(r.EnsemblID, Entry{Symbol: r.Symbol, AltID: r.EntrezID})
	}
	return x, nil
}
