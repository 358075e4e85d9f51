package render

import (
	"context"
	"os"
)

// FileReader reads template and partial files.
type FileReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// FileReaderFunc adapts a function to FileReader.
type FileReaderFunc func(ctx context.Context, path string) (string, error)

// ReadFile implements FileReader
func (f FileReaderFunc) ReadFile(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// OSReader reads files from the local file system.
type OSReader struct{}

// ReadFile implements FileReader
func (OSReader) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CacheStats counts partial cache lookups.
type CacheStats struct {
	Hits   int
	Misses int
}

// PartialCache memoizes raw partial contents by absolute path for the
// lifetime of a single render. Entries are never invalidated.
// It is not safe for concurrent use.
type PartialCache struct {
	reader  FileReader
	entries map[string]string
	stats   CacheStats
}

// NewPartialCache creates an empty cache reading through reader
func NewPartialCache(reader FileReader) *PartialCache {
	return &PartialCache{
		reader:  reader,
		entries: make(map[string]string),
	}
}

// Load returns the raw content at path, reading it on first use.
// A failed read is not cached.
func (c *PartialCache) Load(ctx context.Context, path string) (string, bool, error) {
	if content, ok := c.entries[path]; ok {
		c.stats.Hits++
		return content, true, nil
	}

	content, err := c.reader.ReadFile(ctx, path)
	if err != nil {
		return "", false, NewFileAccessError(path, RolePartial, err)
	}

	c.stats.Misses++
	c.entries[path] = content
	return content, false, nil
}

// Len returns the number of cached partials
func (c *PartialCache) Len() int {
	return len(c.entries)
}

// Stats returns the hit and miss counts so far
func (c *PartialCache) Stats() CacheStats {
	return c.stats
}
