package cache

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const entryExt = ".json"

// FileCache stores each entry as a JSON envelope under dir, sharded by the
// first byte of the key hash.
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache creates dir if needed and returns a cache rooted there.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

type envelope struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e envelope) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) path(key string) string {
	h := Hash([]byte(key))
	return filepath.Join(c.dir, h[:2], h[2:]+entryExt)
}

func (c *FileCache) read(path string) (envelope, bool) {
	var e envelope
	data, err := os.ReadFile(path)
	if err != nil || json.Unmarshal(data, &e) != nil {
		return e, false
	}
	return e, true
}

// Get returns a live entry. Unreadable and expired files are removed and
// count as misses.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	e, ok := c.read(path)
	if !ok || e.expired(c.now()) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return e.Data, true, nil
}

// Set writes through a temporary file so readers never see a partial entry.
func (c *FileCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	e := envelope{Data: data}
	if ttl > 0 {
		e.ExpiresAt = c.now().Add(ttl)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *FileCache) Delete(_ context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *FileCache) Close() error { return nil }

// walk calls fn for every entry file.
func (c *FileCache) walk(ctx context.Context, fn func(path string, d fs.DirEntry) error) error {
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(path, entryExt) {
			return nil
		}
		return fn(path, d)
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes every entry and the emptied shard directories. It returns
// the number of entries removed.
func (c *FileCache) Clear(ctx context.Context) (int, error) {
	n := 0
	err := c.walk(ctx, func(path string, _ fs.DirEntry) error {
		if os.Remove(path) == nil {
			n++
		}
		return nil
	})
	if shards, rerr := os.ReadDir(c.dir); rerr == nil {
		for _, s := range shards {
			if s.IsDir() {
				_ = os.Remove(filepath.Join(c.dir, s.Name())) // only succeeds when empty
			}
		}
	}
	return n, err
}

// Stats counts entries, their total size on disk and how many have expired.
func (c *FileCache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	now := c.now()
	err := c.walk(ctx, func(path string, d fs.DirEntry) error {
		st.Entries++
		if info, err := d.Info(); err == nil {
			st.Bytes += info.Size()
		}
		if e, ok := c.read(path); !ok || e.expired(now) {
			st.Expired++
		}
		return nil
	})
	return st, err
}

var (
	_ Cache      = (*FileCache)(nil)
	_ Maintainer = (*FileCache)(nil)
)
