// Package cache is a file-based cache for downloaded weather subsets.
package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/gridprep/internal/metrics"
)

// Cache stores blobs under dir, one file per key. Keys are slash-separated
// relative paths such as "hrrr/20160229/03/ugrd80.grib2".
type Cache struct {
	name   string
	dir    string
	maxAge time.Duration
}

// New creates a cache in dir. Entries older than maxAge are treated as
// missing; zero means they never expire.
func New(name, dir string, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{name: name, dir: dir, maxAge: maxAge}, nil
}

func (c *Cache) Dir() string { return c.dir }

// path returns the cache file path for key.
func (c *Cache) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cache: invalid key %q", key)
	}
	return filepath.Join(c.dir, clean), nil
}

// Get retrieves a cached entry if it exists and is not stale.
func (c *Cache) Get(key string) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil || (c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge) {
		metrics.CacheMiss(c.name)
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.CacheMiss(c.name)
		return nil, false
	}
	metrics.CacheHit(c.name)
	return data, true
}

// Set stores data under key. The file is written to a temporary name and
// renamed so readers never see a partial entry.
func (c *Cache) Set(key string, data []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: close %s: %w", key, err)
	}
	return os.Rename(tmp.Name(), path)
}

// Stats reports the number of entries and their total size.
type Stats struct {
	Files  int
	Bytes  int64
	Oldest time.Time
	Newest time.Time
}

func (c *Cache) Stats() (Stats, error) {
	var s Stats
	err := c.walk(func(path string, info fs.FileInfo) error {
		s.Files++
		s.Bytes += info.Size()
		if s.Oldest.IsZero() || info.ModTime().Before(s.Oldest) {
			s.Oldest = info.ModTime()
		}
		if info.ModTime().After(s.Newest) {
			s.Newest = info.ModTime()
		}
		return nil
	})
	return s, err
}

// Prune removes entries last written before cutoff and returns how many
// were removed.
func (c *Cache) Prune(cutoff time.Time) (int, error) {
	n := 0
	err := c.walk(func(path string, info fs.FileInfo) error {
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (c *Cache) walk(fn func(path string, info fs.FileInfo) error) error {
	return filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(path, info)
	})
}
