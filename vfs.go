package gitvfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gitvfs/gitvfs/backend"
)

// VFS is a client-side virtual filesystem with Git-like semantics over a
// remote hosting provider. Reads and writes land in the workspace segment;
// Pull reconciles local state against a remote snapshot three-way; Push
// commits the accumulated change set as one remote commit.
//
// Operations are serialized by an internal mutex: a VFS instance is safe to
// call from one goroutine at a time, and the backend is exclusive to the
// instance. Two VFS instances must use distinct storage roots.
type VFS struct {
	backend Backend
	remote  Remote
	branch  string
	idx     *Index
	logger  *slog.Logger
	retry   RetryPolicy
	now     func() time.Time

	mu sync.Mutex
}

// Open initializes the backend, loads the persisted index (resetting to an
// empty one when missing or unparseable) and returns a ready VFS. No remote
// traffic happens here.
func Open(ctx context.Context, store Backend, opts ...OpenOption) (*VFS, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if store == nil {
		return nil, fmt.Errorf("gitvfs: backend is required")
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("gitvfs: init backend: %w", err)
	}

	v := &VFS{
		backend: store,
		remote:  options.Remote,
		branch:  options.Branch,
		logger:  options.Logger,
		retry:   options.Retry,
		now:     options.Now,
	}

	data, err := store.ReadIndex(ctx)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		v.idx = newIndex()
	case err != nil:
		return nil, fmt.Errorf("gitvfs: load index: %w", err)
	default:
		idx, decodeErr := decodeIndex(data)
		if decodeErr != nil {
			// A corrupt index is a recoverable condition: start
			// from an empty one and let the next pull rebuild it.
			v.logger.Warn("resetting corrupt index", "error", decodeErr)
			idx = newIndex()
		}
		v.idx = idx
	}

	return v, nil
}

// Close releases the backend. The VFS must not be used afterwards.
func (v *VFS) Close() error {
	return v.backend.Close()
}

// Head returns the remote commit id the base snapshot reflects.
func (v *VFS) Head() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.idx.Head
}

// Branch returns the tracked branch name.
func (v *VFS) Branch() string { return v.branch }

// Entry returns a copy of the index entry for path.
func (v *VFS) Entry(path string) (Entry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.idx.Entries[path]
	if !ok {
		return Entry{}, false
	}
	return *e.clone(), true
}

// ListPaths returns the sorted visible paths: everything except tombstones.
func (v *VFS) ListPaths() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.idx.visiblePaths()
}

// ConflictPaths returns the sorted paths currently in conflict state.
func (v *VFS) ConflictPaths() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.idx.conflictPaths()
}

// ReadFile returns the effective content of path: workspace if present,
// base otherwise, ErrNotFound if neither.
func (v *VFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readEffective(ctx, path)
}

func (v *VFS) readEffective(ctx context.Context, path string) ([]byte, error) {
	content, err := v.backend.Read(ctx, backend.Workspace, path)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return nil, err
	}
	content, err = v.backend.Read(ctx, backend.Base, path)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	return content, err
}

// ReadWorkspace reads the workspace segment only, ErrNotFound when absent.
func (v *VFS) ReadWorkspace(ctx context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	content, err := v.backend.Read(ctx, backend.Workspace, path)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	return content, err
}

// ReadBase reads the base segment only, ErrNotFound when absent.
func (v *VFS) ReadBase(ctx context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	content, err := v.backend.Read(ctx, backend.Base, path)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	return content, err
}

// ReadConflict returns the remote side's bytes for a conflicted path.
func (v *VFS) ReadConflict(ctx context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	content, err := v.backend.Read(ctx, backend.Conflict, path)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	return content, err
}

// Persistence helpers. Blob and info writes happen first; the aggregate
// index is written last, so a crash is recoverable to the previous durable
// index.

// saveEntry updates the in-memory entry and its info-segment record.
func (v *VFS) saveEntry(ctx context.Context, e *Entry) error {
	e.UpdatedAt = v.now()
	v.idx.Entries[e.Path] = e
	record, err := entryRecord(e)
	if err != nil {
		return err
	}
	if err := v.backend.Write(ctx, backend.Info, e.Path, record); err != nil {
		return fmt.Errorf("gitvfs: write info %s: %w", e.Path, err)
	}
	return nil
}

// dropEntry removes the entry and its info record.
func (v *VFS) dropEntry(ctx context.Context, path string) error {
	delete(v.idx.Entries, path)
	if err := v.backend.Delete(ctx, backend.Info, path); err != nil {
		return fmt.Errorf("gitvfs: delete info %s: %w", path, err)
	}
	return nil
}

// persistIndex writes the aggregate index. Every top-level operation ends
// here.
func (v *VFS) persistIndex(ctx context.Context) error {
	data, err := v.idx.encode()
	if err != nil {
		return err
	}
	if err := v.backend.WriteIndex(ctx, data); err != nil {
		return fmt.Errorf("gitvfs: write index: %w", err)
	}
	return nil
}
