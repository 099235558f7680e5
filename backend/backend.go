// Package backend implements the segmented storage layer the VFS writes
// through.
//
// A backend partitions one storage root into four logical segments:
// workspace (uncommitted user edits), base (the snapshot last reconciled
// with the remote), conflict (remote bytes parked during a merge conflict)
// and info (per-path metadata records). A separate singleton slot holds the
// aggregate index under the literal key "index".
//
// Operations are serialized per backend instance. There is no cross-path
// atomicity: callers write blobs first and the index last so that a crash
// leaves storage recoverable to the last durable index.
package backend

import (
	"context"
	"errors"
	"strings"
)

// Segment is one of the four logical storage partitions per root.
type Segment string

const (
	Workspace Segment = "workspace"
	Base      Segment = "base"
	Conflict  Segment = "conflict"
	Info      Segment = "info"
)

// Segments lists every segment, in the order blobs are cleaned up.
var Segments = []Segment{Workspace, Base, Conflict, Info}

// IndexKey is the literal key the aggregate index is stored under.
const IndexKey = "index"

// ErrNotFound is returned when a blob or the index is absent.
var ErrNotFound = errors.New("backend: not found")

// Backend is a segmented key/value store for one VFS root.
type Backend interface {
	// Init performs idempotent setup (directories, schema, ...).
	Init(ctx context.Context) error

	// Read returns the blob at path in the given segment, or ErrNotFound.
	Read(ctx context.Context, seg Segment, path string) ([]byte, error)

	// Write stores the blob at path in the given segment, replacing any
	// previous content.
	Write(ctx context.Context, seg Segment, path string, content []byte) error

	// Delete removes the blob at path in the given segment. Deleting an
	// absent blob is not an error.
	Delete(ctx context.Context, seg Segment, path string) error

	// DeleteAll removes the blob at path from every segment.
	DeleteAll(ctx context.Context, path string) error

	// List returns the sorted paths stored in the segment. A non-empty
	// prefix matches whole path components: "a" matches "a" and "a/b"
	// but not "ab".
	List(ctx context.Context, seg Segment, prefix string) ([]string, error)

	// ReadIndex returns the aggregate index blob, or ErrNotFound.
	ReadIndex(ctx context.Context) ([]byte, error)

	// WriteIndex stores the aggregate index blob.
	WriteIndex(ctx context.Context, data []byte) error

	// Close releases backend resources. The backend must not be used
	// afterwards.
	Close() error
}

// matchesPrefix reports whether path falls under prefix, where prefix
// boundaries are whole path components.
func matchesPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
