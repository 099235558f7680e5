package gitvfs

import "errors"

var (
	// ErrNotFound is returned when a path has neither workspace nor base
	// content.
	ErrNotFound = errors.New("gitvfs: not found")

	// ErrNoRemote is returned by pull/push when no adapter is configured.
	ErrNoRemote = errors.New("gitvfs: no remote configured")

	// ErrHeadMismatch is returned by Push when the caller's parent sha is
	// not the head the base snapshot reflects.
	ErrHeadMismatch = errors.New("gitvfs: head mismatch")

	// ErrUnresolvedConflicts is returned by Push while any entry is in
	// conflict state.
	ErrUnresolvedConflicts = errors.New("gitvfs: unresolved conflicts")

	// ErrSourceNotFound is returned by Rename when the source path has no
	// content in workspace or base.
	ErrSourceNotFound = errors.New("gitvfs: rename source not found")

	// ErrNoConflict is returned when resolving a path that is not in
	// conflict state.
	ErrNoConflict = errors.New("gitvfs: no conflict for path")
)
