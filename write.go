package gitvfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitvfs/gitvfs/backend"
)

// WriteFile stores content at path in the workspace and reclassifies the
// entry. Writing bytes identical to the base is a no-op (or reverts a
// modified entry or a tombstone back to base); writing other bytes over a
// tombstone revives the path as modified; writing over a conflict keeps the
// conflict open until resolved.
func (v *VFS) WriteFile(ctx context.Context, path string, content []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.writeLocked(ctx, path, content); err != nil {
		return err
	}
	return v.persistIndex(ctx)
}

func (v *VFS) writeLocked(ctx context.Context, path string, content []byte) error {
	sha := ContentSHA(content)
	e, ok := v.idx.Entries[path]

	if !ok {
		if err := v.backend.Write(ctx, backend.Workspace, path, content); err != nil {
			return err
		}
		return v.saveEntry(ctx, &Entry{Path: path, State: StateAdded, WorkspaceSHA: sha})
	}

	switch e.State {
	case StateBase:
		if sha == e.BaseSHA {
			return nil
		}
		if err := v.backend.Write(ctx, backend.Workspace, path, content); err != nil {
			return err
		}
		updated := e.clone()
		updated.State = StateModified
		updated.WorkspaceSHA = sha
		return v.saveEntry(ctx, updated)

	case StateAdded, StateModified:
		if e.BaseSHA != "" && sha == e.BaseSHA {
			// The write restored the base content: un-dirty the path.
			if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
				return err
			}
			updated := e.clone()
			updated.State = StateBase
			updated.WorkspaceSHA = ""
			return v.saveEntry(ctx, updated)
		}
		if err := v.backend.Write(ctx, backend.Workspace, path, content); err != nil {
			return err
		}
		updated := e.clone()
		updated.WorkspaceSHA = sha
		return v.saveEntry(ctx, updated)

	case StateDeleted:
		updated := e.clone()
		if sha == e.BaseSHA {
			// Restoring the base bytes un-deletes the path with no local edit.
			updated.State = StateBase
			return v.saveEntry(ctx, updated)
		}
		if err := v.backend.Write(ctx, backend.Workspace, path, content); err != nil {
			return err
		}
		updated.State = StateModified
		updated.WorkspaceSHA = sha
		return v.saveEntry(ctx, updated)

	case StateConflict:
		if err := v.backend.Write(ctx, backend.Workspace, path, content); err != nil {
			return err
		}
		updated := e.clone()
		updated.WorkspaceSHA = sha
		return v.saveEntry(ctx, updated)
	}

	return fmt.Errorf("gitvfs: entry %s has unknown state %q", path, e.State)
}

// DeleteFile removes path from the workspace view. Paths known to the remote
// become tombstones until a push confirms the deletion; paths that only ever
// existed locally are dropped outright. Deleting an unknown or already
// deleted path is a no-op.
func (v *VFS) DeleteFile(ctx context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	changed, err := v.deleteLocked(ctx, path)
	if err != nil || !changed {
		return err
	}
	return v.persistIndex(ctx)
}

func (v *VFS) deleteLocked(ctx context.Context, path string) (bool, error) {
	e, ok := v.idx.Entries[path]
	if !ok {
		return false, nil
	}

	switch e.State {
	case StateDeleted:
		return false, nil

	case StateAdded:
		if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
			return false, err
		}
		return true, v.dropEntry(ctx, path)

	case StateBase, StateModified, StateConflict:
		if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
			return false, err
		}
		if err := v.backend.Delete(ctx, backend.Conflict, path); err != nil {
			return false, err
		}
		if e.BaseSHA == "" {
			// A conflict that grew out of a local add has no base to
			// tombstone; there is nothing for a push to delete.
			return true, v.dropEntry(ctx, path)
		}
		updated := e.clone()
		updated.State = StateDeleted
		updated.WorkspaceSHA = ""
		updated.RemoteSHA = ""
		return true, v.saveEntry(ctx, updated)
	}

	return false, fmt.Errorf("gitvfs: entry %s has unknown state %q", path, e.State)
}

// Rename moves the effective content of from to to. The change set sees it
// as one delete plus one create; both legs land under a single index write.
func (v *VFS) Rename(ctx context.Context, from, to string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	content, err := v.readEffective(ctx, from)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, from)
	}
	if err != nil {
		return err
	}

	if err := v.writeLocked(ctx, to, content); err != nil {
		return err
	}
	if _, err := v.deleteLocked(ctx, from); err != nil {
		return err
	}
	return v.persistIndex(ctx)
}

// Resolution selects which side wins when resolving a conflict.
type Resolution int

const (
	// ResolveOurs keeps the local bytes and discards the remote side.
	ResolveOurs Resolution = iota
	// ResolveTheirs adopts the remote bytes as the new base.
	ResolveTheirs
)

// Resolve closes a conflict on path. With ResolveOurs the local side is kept:
// workspace bytes become a pending add/modify (or plain base when they equal
// the base), and a local delete becomes a tombstone again. With ResolveTheirs
// the remote bytes become the new base and the workspace copy is discarded;
// when the remote side is a deletion the path is dropped entirely.
// Either way the conflict blob and the remote fingerprint are cleared, which
// unblocks Push.
func (v *VFS) Resolve(ctx context.Context, path string, resolution Resolution) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.idx.Entries[path]
	if !ok || e.State != StateConflict {
		return fmt.Errorf("%w: %s", ErrNoConflict, path)
	}

	switch resolution {
	case ResolveOurs:
		updated := e.clone()
		updated.RemoteSHA = ""
		switch {
		case updated.WorkspaceSHA == "":
			// Local side was a delete: back to a tombstone.
			updated.State = StateDeleted
		case updated.BaseSHA == "":
			updated.State = StateAdded
		case updated.WorkspaceSHA == updated.BaseSHA:
			if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
				return err
			}
			updated.State = StateBase
			updated.WorkspaceSHA = ""
		default:
			updated.State = StateModified
		}
		if err := v.backend.Delete(ctx, backend.Conflict, path); err != nil {
			return err
		}
		if err := v.saveEntry(ctx, updated); err != nil {
			return err
		}

	case ResolveTheirs:
		remoteContent, err := v.backend.Read(ctx, backend.Conflict, path)
		if errors.Is(err, backend.ErrNotFound) {
			// Conflict against a remote delete: adopting "theirs"
			// removes the path entirely.
			if err := v.backend.DeleteAll(ctx, path); err != nil {
				return err
			}
			if err := v.dropEntry(ctx, path); err != nil {
				return err
			}
			break
		}
		if err != nil {
			return err
		}
		if err := v.backend.Write(ctx, backend.Base, path, remoteContent); err != nil {
			return err
		}
		if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
			return err
		}
		if err := v.backend.Delete(ctx, backend.Conflict, path); err != nil {
			return err
		}
		updated := e.clone()
		updated.State = StateBase
		updated.BaseSHA = updated.RemoteSHA
		updated.WorkspaceSHA = ""
		updated.RemoteSHA = ""
		if err := v.saveEntry(ctx, updated); err != nil {
			return err
		}

	default:
		return fmt.Errorf("gitvfs: unknown resolution %d", resolution)
	}

	return v.persistIndex(ctx)
}
