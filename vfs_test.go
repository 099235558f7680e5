package gitvfs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvfs/gitvfs/backend"
	"github.com/gitvfs/gitvfs/remote"
)

// fakeRemote is a scripted Remote for state-machine tests. It records
// commit calls and serves a canned snapshot.
type fakeRemote struct {
	snapshot  *Snapshot
	fetchErr  error
	commitSHA string
	commitErr error
	refErr    error

	fetchCalls  int
	commits     []fakeCommit
	refUpdates  []string
	legacyCalls int
}

type fakeCommit struct {
	branch  string
	message string
	changes []Change
}

func (f *fakeRemote) FetchSnapshot(ctx context.Context, branch string) (*Snapshot, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.snapshot, nil
}

func (f *fakeRemote) CreateCommitWithActions(ctx context.Context, branch, message string, changes []Change) (string, error) {
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.commits = append(f.commits, fakeCommit{branch: branch, message: message, changes: changes})
	return f.commitSHA, nil
}

func (f *fakeRemote) CreateBlobs(ctx context.Context, contents [][]byte) ([]string, error) {
	f.legacyCalls++
	return make([]string, len(contents)), nil
}

func (f *fakeRemote) CreateTree(ctx context.Context, baseTree string, entries []remote.TreeEntry) (string, error) {
	f.legacyCalls++
	return "", nil
}

func (f *fakeRemote) CreateCommit(ctx context.Context, message, tree string, parents []string) (string, error) {
	f.legacyCalls++
	return "", nil
}

func (f *fakeRemote) UpdateRef(ctx context.Context, branch, sha string) error {
	f.refUpdates = append(f.refUpdates, sha)
	return f.refErr
}

// newTestVFS builds a memory-backed VFS with a deterministic clock and no
// retry sleeps.
func newTestVFS(t *testing.T, opts ...OpenOption) *VFS {
	t.Helper()
	base := []OpenOption{
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 1}),
	}
	v, err := Open(context.Background(), backend.NewMemory(), append(base, opts...)...)
	require.NoError(t, err)
	return v
}

// checkInvariants asserts the per-entry SHA rules and the blob/entry
// correspondence after an operation.
func checkInvariants(t *testing.T, v *VFS) {
	t.Helper()
	ctx := context.Background()
	for path, e := range v.idx.Entries {
		require.NoError(t, e.validate(), "entry %s", path)

		_, wsErr := v.backend.Read(ctx, backend.Workspace, path)
		if e.WorkspaceSHA == "" {
			assert.ErrorIs(t, wsErr, backend.ErrNotFound, "workspace blob for %s should be absent", path)
		} else {
			assert.NoError(t, wsErr, "workspace blob for %s should exist", path)
		}
	}
	// Every blob has an entry.
	for _, seg := range []Segment{SegmentWorkspace, SegmentBase, SegmentConflict} {
		paths, err := v.backend.List(ctx, seg, "")
		require.NoError(t, err)
		for _, path := range paths {
			_, ok := v.idx.Entries[path]
			assert.True(t, ok, "blob %s/%s has no index entry", seg, path)
		}
	}
}

func TestWriteFileStates(t *testing.T) {
	ctx := context.Background()

	t.Run("new path becomes added", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("one")))

		e, ok := v.Entry("a.txt")
		require.True(t, ok)
		assert.Equal(t, StateAdded, e.State)
		assert.Equal(t, ContentSHA([]byte("one")), e.WorkspaceSHA)
		assert.Empty(t, e.BaseSHA)
		checkInvariants(t, v)
	})

	t.Run("write identical to base is a no-op", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("one")}})
		require.NoError(t, err)

		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("one")))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateBase, e.State)
		changes, err := v.ChangeSet(ctx)
		require.NoError(t, err)
		assert.Empty(t, changes)
		checkInvariants(t, v)
	})

	t.Run("diverging write becomes modified", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("one")}})
		require.NoError(t, err)

		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("two")))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateModified, e.State)
		assert.Equal(t, ContentSHA([]byte("one")), e.BaseSHA)
		assert.Equal(t, ContentSHA([]byte("two")), e.WorkspaceSHA)
		checkInvariants(t, v)
	})

	t.Run("rewriting base content reverts modified", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("one")}})
		require.NoError(t, err)
		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("two")))

		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("one")))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateBase, e.State)
		assert.Empty(t, e.WorkspaceSHA)
		_, err = v.ReadWorkspace(ctx, "a.txt")
		assert.ErrorIs(t, err, ErrNotFound)
		checkInvariants(t, v)
	})

	t.Run("write over tombstone revives as modified", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("one")}})
		require.NoError(t, err)
		require.NoError(t, v.DeleteFile(ctx, "a.txt"))

		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("two")))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateModified, e.State)
		assert.Equal(t, ContentSHA([]byte("one")), e.BaseSHA)
		checkInvariants(t, v)
	})

	t.Run("write during conflict keeps conflict open", func(t *testing.T) {
		v := conflictedVFS(t)

		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("rework")))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateConflict, e.State)
		assert.NotEmpty(t, e.RemoteSHA)
		checkInvariants(t, v)
	})
}

// conflictedVFS returns a VFS with a.txt in conflict: base "one", local
// "local", remote "remote".
func conflictedVFS(t *testing.T) *VFS {
	t.Helper()
	ctx := context.Background()
	v := newTestVFS(t)
	_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("one")}})
	require.NoError(t, err)
	require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("local")))
	result, err := v.PullSnapshot(ctx, &Snapshot{Head: "h2", Files: map[string][]byte{"a.txt": []byte("remote")}})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	return v
}

func TestDeleteFileStates(t *testing.T) {
	ctx := context.Background()

	t.Run("delete base path leaves tombstone", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("one")}})
		require.NoError(t, err)

		require.NoError(t, v.DeleteFile(ctx, "a.txt"))

		e, ok := v.Entry("a.txt")
		require.True(t, ok)
		assert.Equal(t, StateDeleted, e.State)
		assert.NotContains(t, v.ListPaths(), "a.txt")
		checkInvariants(t, v)
	})

	t.Run("delete added path drops entry", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("one")))

		require.NoError(t, v.DeleteFile(ctx, "a.txt"))

		_, ok := v.Entry("a.txt")
		assert.False(t, ok)
		changes, err := v.ChangeSet(ctx)
		require.NoError(t, err)
		assert.Empty(t, changes)
		checkInvariants(t, v)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("one")}})
		require.NoError(t, err)
		require.NoError(t, v.DeleteFile(ctx, "a.txt"))
		require.NoError(t, v.DeleteFile(ctx, "a.txt"))
		require.NoError(t, v.DeleteFile(ctx, "never-existed.txt"))
		checkInvariants(t, v)
	})

	t.Run("delete conflict born from a local add drops entry", func(t *testing.T) {
		// WriteFile then a pull that carries different bytes for the
		// same path: the conflict entry has no baseSha. Deleting it
		// must not leave a baseless tombstone behind.
		v := newTestVFS(t)
		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("mine")))
		result, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("theirs")}})
		require.NoError(t, err)
		require.Len(t, result.Conflicts, 1)
		e, _ := v.Entry("a.txt")
		require.Empty(t, e.BaseSHA)

		require.NoError(t, v.DeleteFile(ctx, "a.txt"))

		_, ok := v.Entry("a.txt")
		assert.False(t, ok)
		_, err = v.ReadConflict(ctx, "a.txt")
		assert.ErrorIs(t, err, ErrNotFound)
		changes, err := v.ChangeSet(ctx)
		require.NoError(t, err)
		assert.Empty(t, changes)
		checkInvariants(t, v)
	})

	t.Run("delete conflicted path clears conflict blob", func(t *testing.T) {
		v := conflictedVFS(t)

		require.NoError(t, v.DeleteFile(ctx, "a.txt"))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateDeleted, e.State)
		_, err := v.ReadConflict(ctx, "a.txt")
		assert.ErrorIs(t, err, ErrNotFound)
		checkInvariants(t, v)
	})
}

func TestRename(t *testing.T) {
	ctx := context.Background()

	t.Run("rename of base path is delete plus create", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("v1")}})
		require.NoError(t, err)

		require.NoError(t, v.Rename(ctx, "a.txt", "b.txt"))

		changes, err := v.ChangeSet(ctx)
		require.NoError(t, err)
		require.Len(t, changes, 2)
		assert.Equal(t, ActionDelete, changes[0].Action)
		assert.Equal(t, "a.txt", changes[0].Path)
		assert.Equal(t, ActionCreate, changes[1].Action)
		assert.Equal(t, "b.txt", changes[1].Path)
		assert.Equal(t, []byte("v1"), changes[1].Content)
		checkInvariants(t, v)
	})

	t.Run("rename of workspace-only path carries workspace bytes", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("draft")))

		require.NoError(t, v.Rename(ctx, "a.txt", "b.txt"))

		content, err := v.ReadFile(ctx, "b.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("draft"), content)
		_, ok := v.Entry("a.txt")
		assert.False(t, ok)
		checkInvariants(t, v)
	})

	t.Run("rename of absent path fails", func(t *testing.T) {
		v := newTestVFS(t)
		err := v.Rename(ctx, "missing.txt", "b.txt")
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("ours keeps local bytes as modified", func(t *testing.T) {
		v := conflictedVFS(t)

		require.NoError(t, v.Resolve(ctx, "a.txt", ResolveOurs))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateModified, e.State)
		assert.Empty(t, e.RemoteSHA)
		content, err := v.ReadFile(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("local"), content)
		checkInvariants(t, v)
	})

	t.Run("theirs adopts remote bytes as base", func(t *testing.T) {
		v := conflictedVFS(t)

		require.NoError(t, v.Resolve(ctx, "a.txt", ResolveTheirs))

		e, _ := v.Entry("a.txt")
		assert.Equal(t, StateBase, e.State)
		assert.Equal(t, ContentSHA([]byte("remote")), e.BaseSHA)
		content, err := v.ReadFile(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("remote"), content)
		checkInvariants(t, v)
	})

	t.Run("resolving a clean path fails", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("x")))
		err := v.Resolve(ctx, "a.txt", ResolveOurs)
		assert.ErrorIs(t, err, ErrNoConflict)
	})
}

func TestReadFallback(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t)
	_, err := v.PullSnapshot(ctx, &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("base")}})
	require.NoError(t, err)

	// Base only: ReadFile falls back to base, ReadWorkspace does not.
	content, err := v.ReadFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("base"), content)
	_, err = v.ReadWorkspace(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	// After a local edit the workspace wins.
	require.NoError(t, v.WriteFile(ctx, "a.txt", []byte("edit")))
	content, err = v.ReadFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("edit"), content)

	_, err = v.ReadFile(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenResetsCorruptIndex(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	require.NoError(t, store.WriteIndex(ctx, []byte("{ garbage")))

	v, err := Open(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, v.Head())
	assert.Empty(t, v.ListPaths())
}

func TestOpenPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()

	v1, err := Open(ctx, store)
	require.NoError(t, err)
	_, err = v1.PullSnapshot(ctx, &Snapshot{Head: "h9", Files: map[string][]byte{"a.txt": []byte("one")}})
	require.NoError(t, err)
	require.NoError(t, v1.WriteFile(ctx, "b.txt", []byte("two")))

	v2, err := Open(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "h9", v2.Head())
	assert.Equal(t, []string{"a.txt", "b.txt"}, v2.ListPaths())
	e, ok := v2.Entry("b.txt")
	require.True(t, ok)
	assert.Equal(t, StateAdded, e.State)
}

func TestOpenRequiresBackend(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.Error(t, err)
}

func TestPullNeedsRemote(t *testing.T) {
	v := newTestVFS(t)
	_, err := v.Pull(context.Background())
	assert.ErrorIs(t, err, ErrNoRemote)
}

func TestPullUsesAdapter(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRemote{snapshot: &Snapshot{Head: "h1", Files: map[string][]byte{"a.txt": []byte("v1")}}}
	v := newTestVFS(t, WithRemote(fake))

	result, err := v.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.fetchCalls)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "h1", v.Head())
}

func TestPullFetchFailurePropagates(t *testing.T) {
	fake := &fakeRemote{fetchErr: errors.New("boom")}
	v := newTestVFS(t, WithRemote(fake))
	_, err := v.Pull(context.Background())
	assert.Error(t, err)
	assert.Empty(t, v.Head())
}
