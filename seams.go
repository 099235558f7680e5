package gitvfs

import (
	"github.com/gitvfs/gitvfs/backend"
	"github.com/gitvfs/gitvfs/remote"
)

// The storage and remote seams are defined in the backend and remote
// packages and re-exported here for convenience.

// Backend is the segmented storage contract the VFS writes through.
type Backend = backend.Backend

// Segment is one of the four logical storage partitions per root.
type Segment = backend.Segment

const (
	SegmentWorkspace = backend.Workspace
	SegmentBase      = backend.Base
	SegmentConflict  = backend.Conflict
	SegmentInfo      = backend.Info
)

// Remote is the hosting-provider contract.
type Remote = remote.Adapter

// Snapshot is a branch head plus full tree contents.
type Snapshot = remote.Snapshot

// Change is one file action within a commit.
type Change = remote.Change

// Action is a change-set operation kind.
type Action = remote.Action

const (
	ActionCreate = remote.ActionCreate
	ActionUpdate = remote.ActionUpdate
	ActionDelete = remote.ActionDelete
)

// RetryPolicy controls retry/backoff for remote calls.
type RetryPolicy = remote.Policy
