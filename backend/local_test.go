package backend

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T, opts LocalOptions) (*Local, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "root")
	store, err := NewLocal(root, opts)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store, root
}

func TestLocalLayout(t *testing.T) {
	ctx := context.Background()
	store, root := newTestLocal(t, LocalOptions{DisableCompression: true})

	require.NoError(t, store.Write(ctx, Workspace, "dir/a.txt", []byte("content")))
	require.NoError(t, store.WriteIndex(ctx, []byte("{}")))

	// Blobs land under <root>/<segment>/<path>, the index at <root>/index.
	onDisk, err := os.ReadFile(filepath.Join(root, "workspace", "dir", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), onDisk)

	_, err = os.Stat(filepath.Join(root, "index"))
	require.NoError(t, err)
}

func TestLocalCompressionTransparent(t *testing.T) {
	ctx := context.Background()
	store, root := newTestLocal(t, LocalOptions{})

	// Compressible content well above the size floor.
	content := bytes.Repeat([]byte("gitvfs "), 512)
	require.NoError(t, store.Write(ctx, Base, "big.txt", content))

	// Stored form is smaller, read restores the original bytes.
	onDisk, err := os.ReadFile(filepath.Join(root, "base", "big.txt"))
	require.NoError(t, err)
	assert.Less(t, len(onDisk), len(content))

	// Fresh instance, so the read cache cannot answer.
	reopened, err := NewLocal(root, LocalOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	restored, err := reopened.Read(ctx, Base, "big.txt")
	require.NoError(t, err)
	assert.Equal(t, content, restored)
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLocal(t, LocalOptions{})

	assert.Error(t, store.Write(ctx, Workspace, "../outside.txt", []byte("x")))
	assert.Error(t, store.Write(ctx, Workspace, "", []byte("x")))
}

func TestLocalRootsLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	assert.True(t, LocalAvailable(dir))

	storeA, err := NewLocal(filepath.Join(dir, "alpha"), LocalOptions{})
	require.NoError(t, err)
	require.NoError(t, storeA.Init(ctx))
	storeA.Close()

	storeB, err := NewLocal(filepath.Join(dir, "beta"), LocalOptions{})
	require.NoError(t, err)
	require.NoError(t, storeB.Init(ctx))
	storeB.Close()

	// A stray non-root directory is not reported.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-root"), 0o755))

	roots, err := LocalRoots(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, roots)

	require.NoError(t, DestroyLocal(filepath.Join(dir, "alpha")))
	roots, err = LocalRoots(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, roots)
}
