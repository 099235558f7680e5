package backend

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitvfs/gitvfs/internal/compression"
)

// Local implements Backend on a directory tree.
//
// Storage layout (one directory per segment):
//
//	root/
//	  workspace/<path>
//	  base/<path>
//	  conflict/<path>
//	  info/<path>
//	  index  (aggregate index blob)
//
// Blobs are transparently zstd-compressed at rest and served through a small
// in-memory read cache.
type Local struct {
	root  string
	cache *blobCache
	codec *compression.Codec
}

// LocalOptions configures NewLocal.
type LocalOptions struct {
	// CacheSize is the maximum number of blobs held in the read cache.
	// Zero selects a default.
	CacheSize int
	// CompressionLevel is a compression.Level; zero selects the default.
	CompressionLevel compression.Level
	// DisableCompression stores blobs raw.
	DisableCompression bool
}

const defaultCacheSize = 256

// NewLocal opens (or creates) a filesystem-backed root.
func NewLocal(root string, opts LocalOptions) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local: root directory is required")
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	codec, err := compression.New(opts.CompressionLevel, !opts.DisableCompression)
	if err != nil {
		return nil, fmt.Errorf("local: create codec: %w", err)
	}
	return &Local{root: root, cache: newBlobCache(size), codec: codec}, nil
}

// LocalAvailable reports whether the directory can be used as a storage root.
// It probes by creating the directory and a marker file.
func LocalAvailable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".gitvfs-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}

// LocalRoots returns the storage roots under dir: every subdirectory that
// carries at least one segment directory or an index file.
func LocalRoots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("local: list roots: %w", err)
	}
	var roots []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if isLocalRoot(filepath.Join(dir, entry.Name())) {
			roots = append(roots, entry.Name())
		}
	}
	sort.Strings(roots)
	return roots, nil
}

func isLocalRoot(root string) bool {
	if _, err := os.Stat(filepath.Join(root, IndexKey)); err == nil {
		return true
	}
	for _, seg := range Segments {
		if info, err := os.Stat(filepath.Join(root, string(seg))); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// DestroyLocal removes a storage root and everything under it.
func DestroyLocal(root string) error {
	return os.RemoveAll(root)
}

func (l *Local) Init(ctx context.Context) error {
	for _, seg := range Segments {
		if err := os.MkdirAll(filepath.Join(l.root, string(seg)), 0o755); err != nil {
			return fmt.Errorf("local: create segment dir %s: %w", seg, err)
		}
	}
	return nil
}

func (l *Local) Read(ctx context.Context, seg Segment, path string) ([]byte, error) {
	key := cacheKey(seg, path)
	if content, ok := l.cache.get(key); ok {
		return content, nil
	}

	file, err := l.blobPath(seg, path)
	if err != nil {
		return nil, err
	}
	stored, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("local: read %s/%s: %w", seg, path, err)
	}

	content, err := l.codec.Decode(stored)
	if err != nil {
		return nil, fmt.Errorf("local: decode %s/%s: %w", seg, path, err)
	}

	l.cache.add(key, content)
	return content, nil
}

func (l *Local) Write(ctx context.Context, seg Segment, path string, content []byte) error {
	file, err := l.blobPath(seg, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("local: create dir for %s/%s: %w", seg, path, err)
	}
	if err := os.WriteFile(file, l.codec.Encode(content), 0o644); err != nil {
		return fmt.Errorf("local: write %s/%s: %w", seg, path, err)
	}
	l.cache.add(cacheKey(seg, path), content)
	return nil
}

func (l *Local) Delete(ctx context.Context, seg Segment, path string) error {
	file, err := l.blobPath(seg, path)
	if err != nil {
		return err
	}
	l.cache.remove(cacheKey(seg, path))
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("local: delete %s/%s: %w", seg, path, err)
	}
	return nil
}

func (l *Local) DeleteAll(ctx context.Context, path string) error {
	for _, seg := range Segments {
		if err := l.Delete(ctx, seg, path); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) List(ctx context.Context, seg Segment, prefix string) ([]string, error) {
	segDir := filepath.Join(l.root, string(seg))
	var paths []string
	err := filepath.WalkDir(segDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(segDir, file)
		if err != nil {
			return err
		}
		path := filepath.ToSlash(rel)
		if matchesPrefix(path, prefix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: list %s: %w", seg, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (l *Local) ReadIndex(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.root, IndexKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("local: read index: %w", err)
	}
	return data, nil
}

func (l *Local) WriteIndex(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return fmt.Errorf("local: create root: %w", err)
	}
	// Write-then-rename so a crash mid-write never truncates the last
	// durable index.
	tmp := filepath.Join(l.root, IndexKey+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("local: write index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(l.root, IndexKey)); err != nil {
		return fmt.Errorf("local: commit index: %w", err)
	}
	return nil
}

func (l *Local) Close() error {
	l.cache.clear()
	return l.codec.Close()
}

// blobPath maps a logical path into the segment directory, rejecting paths
// that would escape the root.
func (l *Local) blobPath(seg Segment, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("local: invalid path %q", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("local: invalid path %q", path)
		}
	}
	return filepath.Join(l.root, string(seg), filepath.FromSlash(path)), nil
}

func cacheKey(seg Segment, path string) string {
	return string(seg) + "/" + path
}
