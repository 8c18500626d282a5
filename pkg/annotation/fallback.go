package annotation

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/integrations"
	"github.com/matzehuels/exprflow/pkg/observability"
)

// FallbackMapper tries Primary, then Fallback. It never fails hard: when
// no source answers it returns an empty CrossRef together with an
// ErrCodeMappingUnavailable error, which errors.IsFatal reports as
// non-fatal. Callers surface it as a warning and continue unmapped.
type FallbackMapper struct {
	Primary  Mapper
	Fallback Mapper
	Logger   *log.Logger
}

func (m *FallbackMapper) Map(ctx context.Context, ids []string) (CrossRef, error) {
	logger := m.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var primaryErr error
	if m.Primary != nil {
		x, err := m.Primary.Map(ctx, ids)
		if err == nil {
			return x, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		primaryErr = err
		logger.Warn("identifier mapping failed, trying fallback", "err", err)
		observability.Pipeline().OnWarning(ctx, "map", err.Error())
	}

	if m.Fallback != nil {
		x, err := m.Fallback.Map(ctx, ids)
		if err == nil {
			return x, nil
		}
		logger.Warn("fallback identifier mapping failed", "err", err)
		observability.Pipeline().OnWarning(ctx, "map", err.Error())
		return CrossRef{}, errors.Wrap(errors.ErrCodeMappingUnavailable, err,
			"no mapping source available; %d identifiers left unmapped", len(ids))
	}

	return CrossRef{}, errors.Wrap(errors.ErrCodeMappingUnavailable, primaryErr,
		"no mapping source available; %d identifiers left unmapped", len(ids))
}

func normalize(id string) string { return integrations.NormalizeID(id) }
