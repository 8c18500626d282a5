// Package artifact stores the files a pipeline run produces.
//
// A [Sink] receives named artifacts (results tables, plots, the HTML report,
// the metrics textfile). [FS] writes them under a local directory; [S3]
// uploads them to an S3-compatible bucket. Names are slash-separated relative
// paths and are validated with [errors.ValidatePath].
package artifact

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// Info describes a stored artifact.
type Info struct {
	Name         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Sink persists run artifacts.
type Sink interface {
	// Put stores data under name, replacing any previous artifact.
	Put(ctx context.Context, name string, data []byte) (Info, error)

	// Get returns the artifact stored under name.
	Get(ctx context.Context, name string) ([]byte, error)

	// List returns the stored artifacts sorted by name.
	List(ctx context.Context) ([]Info, error)

	// Location returns a human-readable location such as a directory or s3:// URL.
	Location() string
}

// ContentType guesses the MIME type from the file extension.
func ContentType(name string) string {
	switch ext := path.Ext(name); ext {
	case ".tsv":
		return "text/tab-separated-values"
	case ".prom":
		return "text/plain; version=0.0.4"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

func validName(name string) error {
	if err := errors.ValidatePath(name); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "artifact %q", name)
	}
	return nil
}

// Tee writes every artifact to all sinks. Reads are served by the first.
type Tee []Sink

func (t Tee) Put(ctx context.Context, name string, data []byte) (Info, error) {
	var first Info
	for i, s := range t {
		info, err := s.Put(ctx, name, data)
		if err != nil {
			return Info{}, err
		}
		if i == 0 {
			first = info
		}
	}
	return first, nil
}

func (t Tee) Get(ctx context.Context, name string) ([]byte, error) {
	if len(t) == 0 {
		return nil, errors.New(errors.ErrCodeFileNotFound, "artifact %q not found", name)
	}
	return t[0].Get(ctx, name)
}

func (t Tee) List(ctx context.Context) ([]Info, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return t[0].List(ctx)
}

func (t Tee) Location() string {
	locs := make([]string, len(t))
	for i, s := range t {
		locs[i] = s.Location()
	}
	return strings.Join(locs, ", ")
}
