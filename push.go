package gitvfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/gitvfs/gitvfs/backend"
	"github.com/gitvfs/gitvfs/remote"
)

// PushOptions parameterizes a push. ParentSHA must equal the current head;
// Changes overrides the computed change set when non-nil.
type PushOptions struct {
	Message   string
	ParentSHA string
	Changes   []Change
}

// PushResult reports the outcome. NoOp is set when the change set was empty
// and no remote call was made.
type PushResult struct {
	NoOp      bool
	CommitSHA string
}

// ChangeSet projects the index into the ordered action list a push would
// commit: adds become creates, modifications updates, tombstones deletes.
// Actions are ordered lexicographically by path, deletes first within a
// path, so a rename through the same name replays cleanly.
func (v *VFS) ChangeSet(ctx context.Context) ([]Change, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.changeSetLocked(ctx)
}

func (v *VFS) changeSetLocked(ctx context.Context) ([]Change, error) {
	var changes []Change
	for _, e := range v.idx.Entries {
		switch e.State {
		case StateAdded, StateModified:
			content, err := v.backend.Read(ctx, backend.Workspace, e.Path)
			if err != nil {
				return nil, fmt.Errorf("gitvfs: read workspace %s: %w", e.Path, err)
			}
			action := ActionCreate
			if e.State == StateModified {
				action = ActionUpdate
			}
			changes = append(changes, Change{Action: action, Path: e.Path, Content: content})
		case StateDeleted:
			changes = append(changes, Change{Action: ActionDelete, Path: e.Path})
		}
	}
	sortChanges(changes)
	return changes, nil
}

// sortChanges orders actions by path, deletes before creates/updates at the
// same path.
func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Path != changes[j].Path {
			return changes[i].Path < changes[j].Path
		}
		return changes[i].Action == ActionDelete && changes[j].Action != ActionDelete
	})
}

// Push commits the accumulated change set as one remote commit and promotes
// the workspace into the new base.
//
// Preconditions: opts.ParentSHA equals the current head (ErrHeadMismatch
// otherwise — the remote is not contacted) and no entry is in conflict
// state (ErrUnresolvedConflicts). An empty change set returns a NoOp result
// without remote traffic.
func (v *VFS) Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if opts.ParentSHA != v.idx.Head {
		return nil, fmt.Errorf("%w: parent %q, head %q", ErrHeadMismatch, opts.ParentSHA, v.idx.Head)
	}
	if conflicts := v.idx.conflictPaths(); len(conflicts) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedConflicts, conflicts)
	}

	changes := opts.Changes
	if changes == nil {
		var err error
		changes, err = v.changeSetLocked(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(changes) == 0 {
		return &PushResult{NoOp: true, CommitSHA: opts.ParentSHA}, nil
	}

	if v.remote == nil {
		return nil, ErrNoRemote
	}

	commitSHA, err := remote.Do(ctx, v.retry, func() (string, error) {
		return v.remote.CreateCommitWithActions(ctx, v.branch, opts.Message, changes)
	})
	if err != nil {
		return nil, err
	}

	// The commit landed. Promote workspace content into base and clear
	// the tombstones the commit confirmed.
	for _, path := range sortedEntryPaths(v.idx.Entries) {
		e := v.idx.Entries[path]
		switch e.State {
		case StateAdded, StateModified:
			content, err := v.backend.Read(ctx, backend.Workspace, path)
			if err != nil {
				return nil, fmt.Errorf("gitvfs: promote %s: %w", path, err)
			}
			if err := v.backend.Write(ctx, backend.Base, path, content); err != nil {
				return nil, err
			}
			if err := v.backend.Delete(ctx, backend.Workspace, path); err != nil {
				return nil, err
			}
			updated := e.clone()
			updated.State = StateBase
			updated.BaseSHA = updated.WorkspaceSHA
			updated.WorkspaceSHA = ""
			if err := v.saveEntry(ctx, updated); err != nil {
				return nil, err
			}
		case StateDeleted:
			if err := v.backend.Delete(ctx, backend.Base, path); err != nil {
				return nil, err
			}
			if err := v.dropEntry(ctx, path); err != nil {
				return nil, err
			}
		}
	}

	v.idx.Head = commitSHA
	v.idx.LastCommitKey = commitSHA

	// The commit API generally moves the ref itself; a failure here is
	// advisory, not fatal.
	if err := v.remote.UpdateRef(ctx, v.branch, commitSHA); err != nil {
		v.logger.Warn("update ref failed after commit", "branch", v.branch, "error", err)
	}

	if err := v.persistIndex(ctx); err != nil {
		return nil, err
	}

	v.logger.Info("push complete", "sha", commitSHA, "actions", len(changes))
	return &PushResult{CommitSHA: commitSHA}, nil
}
