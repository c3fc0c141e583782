package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// Cache stores uploaded datasets snappy-compressed at rest and parses
// them on demand. One compressed file per project.
type Cache struct {
	dir string
}

// NewCache creates a dataset cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("dataset: create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Put compresses and stores a raw CSV stream for a project, returning
// the on-disk path. Any previous dataset for the project is replaced.
func (c *Cache) Put(projectID string, r io.Reader) (string, error) {
	path := c.path(projectID)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("dataset: create cache file: %w", err)
	}

	w := snappy.NewBufferedWriter(f)
	if _, err := io.Copy(w, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("dataset: write cache file: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("dataset: flush cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("dataset: close cache file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("dataset: commit cache file: %w", err)
	}
	return path, nil
}

// Open loads and parses the cached dataset for a project.
func (c *Cache) Open(projectID string) (*Dataset, error) {
	f, err := os.Open(c.path(projectID))
	if err != nil {
		return nil, fmt.Errorf("dataset: open cached dataset for %s: %w", projectID, err)
	}
	defer f.Close()

	return Parse(snappy.NewReader(f))
}

// OpenRaw returns the decompressed CSV bytes of a cached dataset,
// for copying the original upload elsewhere.
func (c *Cache) OpenRaw(projectID string) (io.ReadCloser, error) {
	f, err := os.Open(c.path(projectID))
	if err != nil {
		return nil, fmt.Errorf("dataset: open cached dataset for %s: %w", projectID, err)
	}
	return &rawReader{r: snappy.NewReader(f), f: f}, nil
}

type rawReader struct {
	r io.Reader
	f *os.File
}

func (rr *rawReader) Read(p []byte) (int, error) { return rr.r.Read(p) }
func (rr *rawReader) Close() error               { return rr.f.Close() }

// Remove deletes a project's cached dataset.
func (c *Cache) Remove(projectID string) error {
	err := os.Remove(c.path(projectID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dataset: remove cached dataset: %w", err)
	}
	return nil
}

func (c *Cache) path(projectID string) string {
	return filepath.Join(c.dir, projectID+".csv.sz")
}
