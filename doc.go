// Package gitvfs provides a client-side virtual filesystem with Git-like
// semantics over a remote hosting provider (GitHub or GitLab).
//
// Applications read and write files locally; the VFS tracks divergence from
// a known remote base, detects three-way conflicts on pull, and pushes the
// accumulated edits as a single commit. Storage is segmented into a mutable
// workspace layer, an immutable base snapshot, a conflict side-store and
// per-path metadata, behind a pluggable Backend. The hosting provider sits
// behind a pluggable Remote.
//
// Basic usage (local only):
//
//	store := backend.NewMemory()
//	vfs, _ := gitvfs.Open(ctx, store)
//
//	// Edit the workspace
//	vfs.WriteFile(ctx, "notes/a.md", []byte("# notes"))
//	vfs.Rename(ctx, "notes/a.md", "notes/b.md")
//
//	// Inspect pending work
//	changes, _ := vfs.ChangeSet(ctx)
//	paths := vfs.ListPaths()
//
// With a remote:
//
//	adapter, _ := remote.NewGitLab(remote.GitLabConfig{Project: "group/project", Token: token})
//	vfs, _ := gitvfs.Open(ctx, store, gitvfs.WithRemote(adapter), gitvfs.WithBranch("main"))
//
//	result, _ := vfs.Pull(ctx)
//	for _, c := range result.Conflicts {
//	    vfs.Resolve(ctx, c.Path, gitvfs.ResolveTheirs)
//	}
//	vfs.Push(ctx, gitvfs.PushOptions{Message: "sync", ParentSHA: vfs.Head()})
package gitvfs
