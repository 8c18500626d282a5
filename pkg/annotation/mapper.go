package annotation

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/exprflow/pkg/integrations/biomart"
)

// Source selects where identifier mappings come from.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceRemote Source = "remote"
	SourceFile   Source = "file"
	SourceNone   Source = "none"
)

// Config drives NewMapper.
type Config struct {
	Source Source

	// Remote is the BioMart client; required for remote and auto.
	Remote *biomart.Client

	// File opens the offline mapping; required for file, optional for auto.
	File     func() (io.ReadCloser, error)
	FileName string

	// Refresh bypasses cached remote lookups.
	Refresh bool

	Logger *log.Logger
}

// NewMapper builds the Mapper for cfg. Every source except none is
// wrapped in a FallbackMapper so failures surface as non-fatal
// ErrCodeMappingUnavailable errors.
func NewMapper(cfg Config) (Mapper, error) {
	var file Mapper
	if cfg.File != nil {
		file = NewFileMapperFunc(cfg.FileName, cfg.File)
	}
	var remote Mapper
	if cfg.Remote != nil {
		remote = &RemoteMapper{Client: cfg.Remote, Refresh: cfg.Refresh}
	}

	switch cfg.Source {
	case SourceNone:
		return none{}, nil
	case SourceFile:
		if file == nil {
			return nil, fmt.Errorf("mapping source file needs a mapping file")
		}
		return &FallbackMapper{Fallback: file, Logger: cfg.Logger}, nil
	case SourceRemote:
		if remote == nil {
			return nil, fmt.Errorf("mapping source remote needs a BioMart client")
		}
		return &FallbackMapper{Primary: remote, Logger: cfg.Logger}, nil
	case SourceAuto, "":
		if remote == nil && file == nil {
			return nil, fmt.Errorf("mapping source auto needs a BioMart client or a mapping file")
		}
		return &FallbackMapper{Primary: remote, Fallback: file, Logger: cfg.Logger}, nil
	}
	return nil, fmt.Errorf("unknown mapping source %q (want auto, remote, file or none)", cfg.Source)
}
