package dataset

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// ManifestFile is the name of the bundle manifest.
const ManifestFile = "bundle.toml"

// BuiltinPrefix marks a source as an embedded bundle.
const BuiltinPrefix = "builtin:"

//go:embed builtin
var builtinFS embed.FS

// Manifest describes the files and defaults of a bundle.
type Manifest struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Organism    string `toml:"organism"`

	// Design is the model formula, e.g. "~ cell + dex".
	Design string `toml:"design"`

	// Condition is the covariate whose levels are compared.
	Condition string `toml:"condition"`

	// Reference is the default control level for Condition.
	Reference string `toml:"reference"`

	Counts   string `toml:"counts"`
	Samples  string `toml:"samples"`
	GeneSets string `toml:"genesets"`
	Mapping  string `toml:"mapping"`

	// Levels optionally fixes the level order of covariates.
	Levels map[string][]string `toml:"levels"`
}

// Bundle is a loaded dataset.
type Bundle struct {
	Source   string
	Manifest Manifest
	Counts   *CountMatrix
	Samples  SampleTable

	fsys fs.FS
}

// HasGeneSets reports whether the bundle ships a GMT file.
func (b *Bundle) HasGeneSets() bool { return b.Manifest.GeneSets != "" }

// HasMapping reports whether the bundle ships an offline mapping TSV.
func (b *Bundle) HasMapping() bool { return b.Manifest.Mapping != "" }

// OpenGeneSets opens the bundle's GMT file.
func (b *Bundle) OpenGeneSets() (io.ReadCloser, error) {
	return b.open("genesets", b.Manifest.GeneSets)
}

// OpenMapping opens the bundle's offline identifier mapping.
func (b *Bundle) OpenMapping() (io.ReadCloser, error) {
	return b.open("mapping", b.Manifest.Mapping)
}

func (b *Bundle) open(kind, name string) (io.ReadCloser, error) {
	if name == "" {
		return nil, errors.New(errors.ErrCodeFileNotFound, "bundle %s declares no %s file", b.Manifest.Name, kind)
	}
	f, err := b.fsys.Open(name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "bundle %s: open %s", b.Manifest.Name, kind)
	}
	return f, nil
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	logger *log.Logger
}

// WithLogger sets the logger used for debug output while loading.
func WithLogger(l *log.Logger) Option {
	return func(o *loadOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Load reads the bundle named by source. A "builtin:" prefix selects an
// embedded bundle; anything else is a directory. A missing bundle or
// missing required file fails with ErrCodeDatasetNotFound.
func Load(ctx context.Context, source string, opts ...Option) (*Bundle, error) {
	o := loadOptions{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fsys, err := resolve(source)
	if err != nil {
		return nil, err
	}

	var m Manifest
	data, err := fs.ReadFile(fsys, ManifestFile)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatasetNotFound, err, "dataset %q has no %s", source, ManifestFile)
	}
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidBundle, err, "dataset %q: parse manifest", source)
	}
	if err := m.validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidBundle, err, "dataset %q", source)
	}

	counts, err := readFile(fsys, m.Counts, ReadCounts)
	if err != nil {
		return nil, wrapRead(source, m.Counts, err)
	}
	samples, err := readFile(fsys, m.Samples, ReadSamples)
	if err != nil {
		return nil, wrapRead(source, m.Samples, err)
	}

	b := &Bundle{Source: source, Manifest: m, Counts: counts, Samples: samples, fsys: fsys}
	if err := b.align(o.logger); err != nil {
		return nil, err
	}
	o.logger.Debug("loaded dataset", "source", source, "features", counts.NumFeatures(), "samples", counts.NumSamples())
	return b, nil
}

// align reorders the sample table to the matrix column order, drops
// metadata rows without a matrix column and applies manifest level orders.
func (b *Bundle) align(logger *log.Logger) error {
	for _, s := range b.Samples.Samples {
		if indexOf(b.Counts.Samples, s) < 0 {
			logger.Debug("dropping metadata row without counts", "sample", s)
		}
	}
	aligned, err := b.Samples.Subset(b.Counts.Samples)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "dataset %s", b.Manifest.Name)
	}

	for col, levels := range b.Manifest.Levels {
		if aligned, err = Relevel(aligned, col, levels); err != nil {
			return fmt.Errorf("dataset %s: manifest levels: %w", b.Manifest.Name, err)
		}
	}
	for _, name := range aligned.Order {
		if err := aligned.Columns[name].Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "dataset %s", b.Manifest.Name)
		}
	}
	if _, ok := aligned.Columns[b.Manifest.Condition]; !ok {
		return errors.New(errors.ErrCodeInvalidBundle, "dataset %s: condition column %q not in sample table", b.Manifest.Name, b.Manifest.Condition)
	}

	b.Samples = aligned
	return nil
}

func (m *Manifest) validate() error {
	var missing []string
	if m.Counts == "" {
		missing = append(missing, "counts")
	}
	if m.Samples == "" {
		missing = append(missing, "samples")
	}
	if m.Condition == "" {
		missing = append(missing, "condition")
	}
	if len(missing) > 0 {
		return fmt.Errorf("manifest is missing %s", strings.Join(missing, ", "))
	}
	if m.Design == "" {
		m.Design = "~ " + m.Condition
	}
	return nil
}

func resolve(source string) (fs.FS, error) {
	if name, ok := strings.CutPrefix(source, BuiltinPrefix); ok {
		if err := errors.ValidateBundleName(name); err != nil {
			return nil, err
		}
		sub, err := fs.Sub(builtinFS, path.Join("builtin", name))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDatasetNotFound, err, "builtin dataset %q", name)
		}
		if _, err := fs.Stat(sub, ManifestFile); err != nil {
			return nil, errors.New(errors.ErrCodeDatasetNotFound, "builtin dataset %q not found (available: %s)", name, strings.Join(builtinNames(), ", "))
		}
		return sub, nil
	}

	if source == "" {
		return nil, errors.New(errors.ErrCodeDatasetNotFound, "no dataset given")
	}
	info, err := os.Stat(source)
	if err != nil || !info.IsDir() {
		return nil, errors.New(errors.ErrCodeDatasetNotFound, "dataset directory %q not found", source)
	}
	return os.DirFS(source), nil
}

func readFile[T any](fsys fs.FS, name string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := fsys.Open(name)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return parse(f)
}

func wrapRead(source, name string, err error) error {
	if errors.Is(err, errors.ErrCodeInvalidInput) {
		return err
	}
	if _, ok := err.(*fs.PathError); ok {
		return errors.Wrap(errors.ErrCodeDatasetNotFound, err, "dataset %q: missing %s", source, name)
	}
	return errors.Wrap(errors.ErrCodeInvalidFormat, err, "dataset %q: %s", source, name)
}

// Info summarizes a builtin bundle.
type Info struct {
	Name        string
	Description string
	Organism    string
	Design      string
	Reference   string
}

// List returns the builtin bundles sorted by name.
func List() []Info {
	var out []Info
	for _, name := range builtinNames() {
		data, err := fs.ReadFile(builtinFS, path.Join("builtin", name, ManifestFile))
		if err != nil {
			continue
		}
		var m Manifest
		if _, err := toml.Decode(string(data), &m); err != nil {
			continue
		}
		out = append(out, Info{
			Name:        BuiltinPrefix + name,
			Description: m.Description,
			Organism:    m.Organism,
			Design:      m.Design,
			Reference:   m.Reference,
		})
	}
	return out
}

func builtinNames() []string {
	entries, _ := fs.ReadDir(builtinFS, "builtin")
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}
