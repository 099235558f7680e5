package gitvfs

import (
	"context"
	"sort"

	"github.com/gitvfs/gitvfs/backend"
	"github.com/gitvfs/gitvfs/remote"
)

// Conflict describes one path a pull could not auto-merge. RemoteSHA is
// empty when the remote side is a deletion.
type Conflict struct {
	Path      string `json:"path"`
	RemoteSHA string `json:"remoteSha"`
}

// PullResult reports what a pull did: the paths whose base content was
// fetched or refreshed, and the conflicts it surfaced.
type PullResult struct {
	FetchedPaths []string
	Conflicts    []Conflict
}

// Pull fetches a snapshot of the tracked branch from the remote adapter
// (with retry) and reconciles it. Requires a configured remote.
func (v *VFS) Pull(ctx context.Context) (*PullResult, error) {
	if v.remote == nil {
		return nil, ErrNoRemote
	}
	snap, err := remote.Do(ctx, v.retry, func() (*Snapshot, error) {
		return v.remote.FetchSnapshot(ctx, v.branch)
	})
	if err != nil {
		return nil, err
	}
	return v.PullSnapshot(ctx, snap)
}

// PullSnapshot reconciles the VFS against a precomputed snapshot. This is
// the pure core of Pull: callers that already hold the data (tests,
// embedders with their own transport) use it directly.
//
// Reconciliation is three-way per path: the base fingerprint is the merge
// base, the workspace is the local side, the snapshot the remote side.
// Identical bytes on both sides never produce a conflict. The operation is
// idempotent; re-running it after a partial failure converges.
func (v *VFS) PullSnapshot(ctx context.Context, snap *Snapshot) (*PullResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	result := &PullResult{}

	for _, path := range v.unionPaths(snap) {
		e := v.idx.Entries[path]
		remoteContent, inRemote := snap.Files[path]

		var err error
		if inRemote {
			err = v.pullPresent(ctx, path, e, remoteContent, result)
		} else if e != nil {
			err = v.pullAbsent(ctx, path, e, result)
		}
		if err != nil {
			return nil, err
		}
	}

	v.idx.Head = snap.Head
	if err := v.persistIndex(ctx); err != nil {
		return nil, err
	}

	v.logger.Info("pull complete",
		"head", snap.Head,
		"fetched", len(result.FetchedPaths),
		"conflicts", len(result.Conflicts),
	)
	return result, nil
}

// unionPaths returns the sorted union of tracked paths and snapshot paths.
func (v *VFS) unionPaths(snap *Snapshot) []string {
	seen := make(map[string]struct{}, len(v.idx.Entries)+len(snap.Files))
	for path := range v.idx.Entries {
		seen[path] = struct{}{}
	}
	for path := range snap.Files {
		seen[path] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// pullPresent handles a path that exists on the remote side.
func (v *VFS) pullPresent(ctx context.Context, path string, e *Entry, remoteContent []byte, result *PullResult) error {
	remoteSHA := ContentSHA(remoteContent)

	if e == nil {
		if err := v.backend.Write(ctx, backend.Base, path, remoteContent); err != nil {
			return err
		}
		result.FetchedPaths = append(result.FetchedPaths, path)
		return v.saveEntry(ctx, &Entry{Path: path, State: StateBase, BaseSHA: remoteSHA})
	}

	switch e.State {
	case StateBase:
		if remoteSHA == e.BaseSHA {
			return nil
		}
		if err := v.backend.Write(ctx, backend.Base, path, remoteContent); err != nil {
			return err
		}
		result.FetchedPaths = append(result.FetchedPaths, path)
		updated := e.clone()
		updated.BaseSHA = remoteSHA
		return v.saveEntry(ctx, updated)

	case StateModified, StateAdded:
		if e.WorkspaceSHA == remoteSHA {
			// Both sides wrote the same bytes: promote without conflict.
			return v.promote(ctx, path, e, remoteContent, remoteSHA, result)
		}
		return v.conflict(ctx, path, e, remoteContent, remoteSHA, result)

	case StateDeleted:
		// Local delete vs a live remote path.
		return v.conflict(ctx, path, e, remoteContent, remoteSHA, result)

	case StateConflict:
		if e.WorkspaceSHA != "" && e.WorkspaceSHA == remoteSHA {
			// The remote caught up with the local side; the conflict
			// dissolves.
			if err := v.backend.Delete(ctx, backend.Conflict, path); err != nil {
				return err
			}
			return v.promote(ctx, path, e, remoteContent, remoteSHA, result)
		}
		return v.conflict(ctx, path, e, remoteContent, remoteSHA, result)
	}
	return nil
}

// pullAbsent handles a tracked path the remote side no longer has.
func (v *VFS) pullAbsent(ctx context.Context, path string, e *Entry, result *PullResult) error {
	switch e.State {
	case StateBase:
		if err := v.backend.Delete(ctx, backend.Base, path); err != nil {
			return err
		}
		return v.dropEntry(ctx, path)

	case StateDeleted:
		// Both sides deleted: the tombstone is finalized.
		if err := v.backend.Delete(ctx, backend.Base, path); err != nil {
			return err
		}
		return v.dropEntry(ctx, path)

	case StateAdded:
		return nil

	case StateModified, StateConflict:
		// Local change vs remote delete.
		if err := v.backend.Delete(ctx, backend.Conflict, path); err != nil {
			return err
		}
		updated := e.clone()
		updated.State = StateConflict
		updated.RemoteSHA = ""
		result.Conflicts = append(result.Conflicts, Conflict{Path: path})
		return v.saveEntry(ctx, updated)
	}
	return nil
}

// promote adopts remoteContent as the new base for a path whose local bytes
// already match it.
func (v *VFS) promote(ctx context.Context, path string, e *Entry, remoteContent []byte, remoteSHA string, result *PullResult) error {
	if err := v.backend.Write(ctx, backend.Base, path, remoteContent); err != nil {
		return err
	}
	if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
		return err
	}
	result.FetchedPaths = append(result.FetchedPaths, path)
	updated := e.clone()
	updated.State = StateBase
	updated.BaseSHA = remoteSHA
	updated.WorkspaceSHA = ""
	updated.RemoteSHA = ""
	return v.saveEntry(ctx, updated)
}

// conflict parks the remote bytes in the conflict segment and flags the
// entry. A failed conflict-blob write is logged and swallowed so one bad
// path does not abort the whole pull; the entry is still flagged and the
// bytes can be re-fetched by the next pull.
func (v *VFS) conflict(ctx context.Context, path string, e *Entry, remoteContent []byte, remoteSHA string, result *PullResult) error {
	if err := v.backend.Write(ctx, backend.Conflict, path, remoteContent); err != nil {
		v.logger.Warn("persist conflict content failed", "path", path, "error", err)
	}
	updated := e.clone()
	updated.State = StateConflict
	updated.RemoteSHA = remoteSHA
	result.Conflicts = append(result.Conflicts, Conflict{Path: path, RemoteSHA: remoteSHA})
	return v.saveEntry(ctx, updated)
}

// ApplyBaseSnapshot forcibly replaces the base layer with snapshot contents
// and re-points head, without three-way conflict detection. Pull uses the
// richer reconciliation above; this is the primitive for callers that want
// to seed or reset the base layer directly.
func (v *VFS) ApplyBaseSnapshot(ctx context.Context, files map[string][]byte, head string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, path := range sortedKeys(files) {
		content := files[path]
		sha := ContentSHA(content)
		if err := v.backend.Write(ctx, backend.Base, path, content); err != nil {
			return err
		}

		e, ok := v.idx.Entries[path]
		if !ok {
			if err := v.saveEntry(ctx, &Entry{Path: path, State: StateBase, BaseSHA: sha}); err != nil {
				return err
			}
			continue
		}

		updated := e.clone()
		updated.BaseSHA = sha
		// Reclassify against the new base so the state invariants hold.
		switch updated.State {
		case StateBase:
			// Nothing beyond the fingerprint.
		case StateAdded, StateModified:
			if updated.WorkspaceSHA == sha {
				if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
					return err
				}
				updated.State = StateBase
				updated.WorkspaceSHA = ""
			} else {
				updated.State = StateModified
			}
		case StateDeleted, StateConflict:
			// Keep the local intent; only the merge base moved.
		}
		if err := v.saveEntry(ctx, updated); err != nil {
			return err
		}
	}

	// Tracked paths with a base fingerprint that the snapshot no longer
	// carries lose their base layer.
	for _, path := range sortedEntryPaths(v.idx.Entries) {
		if _, inSnapshot := files[path]; inSnapshot {
			continue
		}
		e := v.idx.Entries[path]
		if e.BaseSHA == "" {
			continue
		}
		if err := v.backend.Delete(ctx, backend.Base, path); err != nil {
			return err
		}
		if e.WorkspaceSHA == "" {
			if err := v.dropEntry(ctx, path); err != nil {
				return err
			}
			continue
		}
		updated := e.clone()
		updated.State = StateAdded
		updated.BaseSHA = ""
		updated.RemoteSHA = ""
		if err := v.saveEntry(ctx, updated); err != nil {
			return err
		}
	}

	v.idx.Head = head
	return v.persistIndex(ctx)
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedEntryPaths(entries map[string]*Entry) []string {
	paths := make([]string, 0, len(entries))
	for path := range entries {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
