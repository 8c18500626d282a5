package artifact

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// FS writes artifacts below a local directory.
type FS struct {
	root string
}

// NewFS returns a sink rooted at dir, creating it when missing.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidPath, "output directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FS{root: dir}, nil
}

func (s *FS) Location() string { return s.root }

func (s *FS) Put(_ context.Context, name string, data []byte) (Info, error) {
	if err := validName(name); err != nil {
		return Info{}, err
	}
	p := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Info{}, err
	}
	// Write to a sibling temp file first so readers never see a partial artifact.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return Info{}, err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Info{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return Info{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return Info{}, err
	}
	return Info{Name: name, Size: st.Size(), ContentType: ContentType(name), LastModified: st.ModTime()}, nil
}

func (s *FS) Get(_ context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(name)))
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "artifact %q not found", name)
	}
	return data, err
}

func (s *FS) List(context.Context) ([]Info, error) {
	var infos []Info
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name()[0] == '.' {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		infos = append(infos, Info{Name: name, Size: st.Size(), ContentType: ContentType(name), LastModified: st.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
