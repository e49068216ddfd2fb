package vfs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forgehq/forge/internal/gitstore"
)

// ErrNoChanges is returned by Commit when there are no pending writes and
// no tombstones to flush.
var ErrNoChanges = fmt.Errorf("vfs: commit: nothing to commit")

// CommitOptions carries the classification inputs OverlayVFS.Commit needs
// to hand off to CommitPolicy, plus the repository's working directory
// (used only for the post-commit working-directory sync decision).
type CommitOptions struct {
	Type           gitstore.Type
	Message        string
	Author         gitstore.Signature
	Committer      gitstore.Signature
	WorkingDir     string // "" disables working-directory sync entirely
	CheckedOutRepo bool   // the repo's currently checked-out branch, read before commit
}

// Commit flushes pending writes and tombstones into a new git commit on
// o.branch, classified via CommitPolicy, then rebases the overlay onto the
// new head. Committing with no pending writes and no tombstones is
// rejected.
func (o *OverlayVFS) Commit(tok OwnerToken, opts CommitOptions) (string, error) {
	o.assertOwnership(tok)

	if !o.HasPendingChanges() {
		return "", ErrNoChanges
	}

	// Freeze the working-directory sync decision now, before any git state
	// changes under us.
	syncWorkingDir := opts.WorkingDir != "" && opts.CheckedOutRepo && workingDirClean(opts.WorkingDir)

	var inserts []gitstore.Insert
	var deletes []string
	for path, data := range o.pending {
		blobHash, err := o.store.CreateBlob(data)
		if err != nil {
			return "", fmt.Errorf("vfs: commit: create_blob %s: %w", path, err)
		}
		inserts = append(inserts, gitstore.Insert{Path: path, Oid: blobHash})
	}
	for path := range o.tombstones {
		deletes = append(deletes, path)
	}

	newTree, err := o.store.BuildTree(o.base.TreeHash(), inserts, deletes)
	if err != nil {
		return "", fmt.Errorf("vfs: commit: build_tree: %w", err)
	}

	newHead, err := o.store.Apply(o.branch, opts.Type, opts.Message, newTree, opts.Author, opts.Committer)
	if err != nil {
		return "", fmt.Errorf("vfs: commit: %w", err)
	}

	changedPaths := make(map[string]bool, len(o.pending)+len(o.tombstones))
	for p := range o.pending {
		changedPaths[p] = true
	}
	for p := range o.tombstones {
		changedPaths[p] = true
	}

	o.pending = make(map[string][]byte)
	o.tombstones = make(map[string]bool)

	newBase, err := NewBaseVFS(o.store, newHead)
	if err != nil {
		return "", fmt.Errorf("vfs: commit: rebase onto new head: %w", err)
	}
	o.base = newBase

	if syncWorkingDir {
		if err := syncWorkingDirectory(opts.WorkingDir, o, changedPaths); err != nil {
			return "", fmt.Errorf("vfs: commit: sync working directory: %w", err)
		}
	}

	return newHead.String(), nil
}

// workingDirClean reports whether dir has no uncommitted changes, shelling
// out to git since go-git's worktree status is not wired for this overlay's
// detached, in-memory commit flow.
func workingDirClean(dir string) bool {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(out))) == 0
}

// syncWorkingDirectory overwrites tracked files in dir with the overlay's
// post-commit content for every path that changed this commit.
func syncWorkingDirectory(dir string, o *OverlayVFS, changedPaths map[string]bool) error {
	for path := range changedPaths {
		data, err := o.Read(path)
		if err != nil {
			// Deleted in the commit: remove from the working directory too.
			_ = os.Remove(filepath.Join(dir, filepath.FromSlash(path)))
			continue
		}
		dest := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
