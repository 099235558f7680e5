package gitvfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(head string, files map[string]string) *Snapshot {
	bytesFiles := make(map[string][]byte, len(files))
	for path, content := range files {
		bytesFiles[path] = []byte(content)
	}
	return &Snapshot{Head: head, Files: bytesFiles}
}

func TestPullFastForward(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t)

	_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1"}))
	require.NoError(t, err)

	result, err := v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{"a": "v2"}))
	require.NoError(t, err)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "h2", v.Head())
	content, err := v.ReadFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), content)
	checkInvariants(t, v)
}

func TestPullEmptyWorkspaceNeverConflicts(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t)

	_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "1", "b": "2", "c": "3"}))
	require.NoError(t, err)

	result, err := v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{"a": "1x", "c": "3", "d": "4"}))
	require.NoError(t, err)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "h2", v.Head())
	assert.Equal(t, []string{"a", "c", "d"}, v.ListPaths())
	checkInvariants(t, v)
}

func TestPullConflictOnDivergingEdit(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t)

	_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1"}))
	require.NoError(t, err)
	require.NoError(t, v.WriteFile(ctx, "a", []byte("local")))

	result, err := v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{"a": "remote"}))
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "a", result.Conflicts[0].Path)
	assert.Equal(t, ContentSHA([]byte("remote")), result.Conflicts[0].RemoteSHA)

	e, _ := v.Entry("a")
	assert.Equal(t, StateConflict, e.State)
	assert.Equal(t, ContentSHA([]byte("remote")), e.RemoteSHA)

	parked, err := v.ReadConflict(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), parked)

	// The local side stays readable.
	content, err := v.ReadFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), content)
	checkInvariants(t, v)
}

func TestPullIdenticalBytesNeverConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("modified matching remote promotes to base", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1"}))
		require.NoError(t, err)
		require.NoError(t, v.WriteFile(ctx, "a", []byte("same")))

		result, err := v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{"a": "same"}))
		require.NoError(t, err)

		assert.Empty(t, result.Conflicts)
		e, _ := v.Entry("a")
		assert.Equal(t, StateBase, e.State)
		assert.Equal(t, ContentSHA([]byte("same")), e.BaseSHA)
		_, err = v.ReadWorkspace(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
		checkInvariants(t, v)
	})

	t.Run("independently created identical file promotes", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.WriteFile(ctx, "a", []byte("same")))

		result, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "same"}))
		require.NoError(t, err)

		assert.Empty(t, result.Conflicts)
		e, _ := v.Entry("a")
		assert.Equal(t, StateBase, e.State)
		checkInvariants(t, v)
	})
}

func TestPullAddedVersusRemoteCreate(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t)
	require.NoError(t, v.WriteFile(ctx, "a", []byte("mine")))

	result, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "theirs"}))
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	e, _ := v.Entry("a")
	assert.Equal(t, StateConflict, e.State)
	assert.Empty(t, e.BaseSHA)
	checkInvariants(t, v)
}

func TestPullDeleteLifecycles(t *testing.T) {
	ctx := context.Background()

	t.Run("tombstone finalized when remote dropped the path", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1"}))
		require.NoError(t, err)
		require.NoError(t, v.DeleteFile(ctx, "a"))

		result, err := v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{}))
		require.NoError(t, err)

		assert.Empty(t, result.Conflicts)
		_, ok := v.Entry("a")
		assert.False(t, ok)
		checkInvariants(t, v)
	})

	t.Run("local delete vs remote change conflicts", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1"}))
		require.NoError(t, err)
		require.NoError(t, v.DeleteFile(ctx, "a"))

		result, err := v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{"a": "v2"}))
		require.NoError(t, err)

		require.Len(t, result.Conflicts, 1)
		parked, err := v.ReadConflict(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), parked)
		checkInvariants(t, v)
	})

	t.Run("remote delete of untouched path drops it", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1", "b": "v1"}))
		require.NoError(t, err)

		_, err = v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{"b": "v1"}))
		require.NoError(t, err)

		_, ok := v.Entry("a")
		assert.False(t, ok)
		_, err = v.ReadFile(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
		checkInvariants(t, v)
	})

	t.Run("local change vs remote delete conflicts", func(t *testing.T) {
		v := newTestVFS(t)
		_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1"}))
		require.NoError(t, err)
		require.NoError(t, v.WriteFile(ctx, "a", []byte("local")))

		result, err := v.PullSnapshot(ctx, snapshotOf("h2", map[string]string{}))
		require.NoError(t, err)

		require.Len(t, result.Conflicts, 1)
		assert.Empty(t, result.Conflicts[0].RemoteSHA)
		e, _ := v.Entry("a")
		assert.Equal(t, StateConflict, e.State)
		assert.Empty(t, e.RemoteSHA)
		checkInvariants(t, v)
	})

	t.Run("locally added path survives a pull that lacks it", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.WriteFile(ctx, "new.txt", []byte("draft")))

		result, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"other": "x"}))
		require.NoError(t, err)

		assert.Empty(t, result.Conflicts)
		e, _ := v.Entry("new.txt")
		assert.Equal(t, StateAdded, e.State)
		checkInvariants(t, v)
	})
}

func TestPullIdempotent(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t)
	_, err := v.PullSnapshot(ctx, snapshotOf("h1", map[string]string{"a": "v1", "b": "v1"}))
	require.NoError(t, err)
	require.NoError(t, v.WriteFile(ctx, "a", []byte("local")))

	snap := snapshotOf("h2", map[string]string{"a": "remote", "b": "v2"})

	first, err := v.PullSnapshot(ctx, snap)
	require.NoError(t, err)
	firstEntry, _ := v.Entry("a")

	second, err := v.PullSnapshot(ctx, snap)
	require.NoError(t, err)
	secondEntry, _ := v.Entry("a")

	assert.Equal(t, len(first.Conflicts), len(second.Conflicts))
	assert.Equal(t, firstEntry.State, secondEntry.State)
	assert.Equal(t, firstEntry.RemoteSHA, secondEntry.RemoteSHA)
	assert.Equal(t, "h2", v.Head())
	checkInvariants(t, v)
}

func TestPullResolvesConflictWhenRemoteCatchesUp(t *testing.T) {
	ctx := context.Background()
	v := conflictedVFS(t)

	// The remote now carries exactly the local bytes: the conflict
	// dissolves into base.
	result, err := v.PullSnapshot(ctx, snapshotOf("h3", map[string]string{"a.txt": "local"}))
	require.NoError(t, err)

	assert.Empty(t, result.Conflicts)
	e, _ := v.Entry("a.txt")
	assert.Equal(t, StateBase, e.State)
	_, err = v.ReadConflict(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	checkInvariants(t, v)
}

func TestApplyBaseSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds base and head", func(t *testing.T) {
		v := newTestVFS(t)
		err := v.ApplyBaseSnapshot(ctx, map[string][]byte{"a": []byte("v1")}, "h1")
		require.NoError(t, err)

		assert.Equal(t, "h1", v.Head())
		e, _ := v.Entry("a")
		assert.Equal(t, StateBase, e.State)
		content, err := v.ReadBase(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), content)
		checkInvariants(t, v)
	})

	t.Run("drops vanished paths without local edits", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.ApplyBaseSnapshot(ctx, map[string][]byte{"a": []byte("v1"), "b": []byte("v1")}, "h1"))

		require.NoError(t, v.ApplyBaseSnapshot(ctx, map[string][]byte{"b": []byte("v1")}, "h2"))

		_, ok := v.Entry("a")
		assert.False(t, ok)
		checkInvariants(t, v)
	})

	t.Run("keeps locally edited path as added when base vanishes", func(t *testing.T) {
		v := newTestVFS(t)
		require.NoError(t, v.ApplyBaseSnapshot(ctx, map[string][]byte{"a": []byte("v1")}, "h1"))
		require.NoError(t, v.WriteFile(ctx, "a", []byte("local")))

		require.NoError(t, v.ApplyBaseSnapshot(ctx, map[string][]byte{}, "h2"))

		e, _ := v.Entry("a")
		assert.Equal(t, StateAdded, e.State)
		assert.Empty(t, e.BaseSHA)
		checkInvariants(t, v)
	})
}
