package gitvfs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// State classifies a tracked path relative to the base snapshot.
type State string

const (
	// StateBase means the path matches the base snapshot; no local edit.
	StateBase State = "base"
	// StateAdded means the path exists only in the workspace.
	StateAdded State = "added"
	// StateModified means the workspace content diverges from base.
	StateModified State = "modified"
	// StateDeleted is a tombstone: the path was removed locally and the
	// deletion has not been pushed yet.
	StateDeleted State = "deleted"
	// StateConflict means a pull found diverging local and remote edits.
	StateConflict State = "conflict"
)

func (s State) valid() bool {
	switch s {
	case StateBase, StateAdded, StateModified, StateDeleted, StateConflict:
		return true
	}
	return false
}

// visible reports whether the path appears in directory listings.
// Tombstones are hidden until a push confirms the remote deletion.
func (s State) visible() bool {
	return s != StateDeleted
}

// Entry is the per-path index record.
//
// The SHA fields carry the fingerprints of the bytes in the corresponding
// segment: BaseSHA for base, WorkspaceSHA for workspace, and RemoteSHA for
// the remote side persisted in the conflict segment during a conflict.
type Entry struct {
	Path         string    `json:"path"`
	State        State     `json:"state"`
	BaseSHA      string    `json:"baseSha,omitempty"`
	WorkspaceSHA string    `json:"workspaceSha,omitempty"`
	RemoteSHA    string    `json:"remoteSha,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// validate checks the SHA-presence rules implied by the entry state.
func (e *Entry) validate() error {
	switch e.State {
	case StateBase:
		if e.BaseSHA == "" {
			return fmt.Errorf("entry %s: base state without baseSha", e.Path)
		}
	case StateAdded:
		if e.BaseSHA != "" || e.WorkspaceSHA == "" {
			return fmt.Errorf("entry %s: added state requires workspaceSha and no baseSha", e.Path)
		}
	case StateModified:
		if e.BaseSHA == "" || e.WorkspaceSHA == "" {
			return fmt.Errorf("entry %s: modified state requires baseSha and workspaceSha", e.Path)
		}
		if e.BaseSHA == e.WorkspaceSHA {
			return fmt.Errorf("entry %s: modified state with identical shas", e.Path)
		}
	case StateDeleted:
		if e.BaseSHA == "" || e.WorkspaceSHA != "" {
			return fmt.Errorf("entry %s: deleted state requires baseSha and no workspaceSha", e.Path)
		}
	case StateConflict:
		// Local side may be an add (no baseSha) or a delete (no
		// workspaceSha); nothing to enforce beyond the state itself.
	default:
		return fmt.Errorf("entry %s: unknown state %q", e.Path, e.State)
	}
	return nil
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}

// Index is the VFS's authoritative state: the remote commit id that base
// reflects, the key of the last pushed commit, and the per-path entries.
type Index struct {
	Head          string            `json:"head"`
	LastCommitKey string            `json:"lastCommitKey,omitempty"`
	Entries       map[string]*Entry `json:"entries"`
}

func newIndex() *Index {
	return &Index{Entries: make(map[string]*Entry)}
}

// decodeIndex parses a serialized index. Callers reset to a fresh index when
// this fails; a corrupt index is recoverable, not fatal.
func decodeIndex(data []byte) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	for path, e := range idx.Entries {
		if e == nil || !e.State.valid() {
			return nil, fmt.Errorf("parse index: invalid entry for %q", path)
		}
		e.Path = path
	}
	return &idx, nil
}

func (i *Index) encode() ([]byte, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("serialize index: %w", err)
	}
	return data, nil
}

// entryRecord is the info-segment form of an entry, kept alongside the
// aggregate index so paths can be enumerated without parsing it.
func entryRecord(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialize entry %s: %w", e.Path, err)
	}
	return data, nil
}

// visiblePaths returns the sorted paths whose entries are listable.
func (i *Index) visiblePaths() []string {
	paths := make([]string, 0, len(i.Entries))
	for path, e := range i.Entries {
		if e.State.visible() {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// conflictPaths returns the sorted paths currently in conflict state.
func (i *Index) conflictPaths() []string {
	var paths []string
	for path, e := range i.Entries {
		if e.State == StateConflict {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}
