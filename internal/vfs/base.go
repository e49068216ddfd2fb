// Package vfs implements the layered virtual filesystem: a read-only view
// of a single git commit (BaseVFS) and a writable overlay that accumulates
// a turn's edits in memory before committing them atomically (OverlayVFS).
package vfs

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/forgehq/forge/internal/gitstore"
)

// BaseVFS is a read-only view of a single commit's tree.
type BaseVFS struct {
	store      *gitstore.Store
	commitHash plumbing.Hash
	treeHash   plumbing.Hash
}

// NewBaseVFS constructs a read-only view rooted at the given commit.
func NewBaseVFS(store *gitstore.Store, commitHash plumbing.Hash) (*BaseVFS, error) {
	commit, err := store.Commit(commitHash)
	if err != nil {
		return nil, fmt.Errorf("vfs: base from commit %s: %w", commitHash, err)
	}
	return &BaseVFS{store: store, commitHash: commitHash, treeHash: commit.TreeHash}, nil
}

// CommitHash returns the commit this view is rooted at.
func (b *BaseVFS) CommitHash() plumbing.Hash {
	return b.commitHash
}

// TreeHash returns the tree this view is rooted at.
func (b *BaseVFS) TreeHash() plumbing.Hash {
	return b.treeHash
}

// Read returns the bytes of path as of this commit.
func (b *BaseVFS) Read(path string) ([]byte, error) {
	return b.store.ReadBlob(b.treeHash, path)
}

// ListAllFiles walks the tree depth-first, returning every blob path.
// Submodule entries (tree entries whose mode denotes a nested commit) are
// skipped.
func (b *BaseVFS) ListAllFiles() ([]string, error) {
	if b.treeHash == plumbing.ZeroHash {
		return nil, nil
	}
	tree, err := b.store.ReadTree(b.treeHash)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := b.walkTree(tree, "", &out); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (b *BaseVFS) walkTree(tree *object.Tree, prefix string, out *[]string) error {
	for _, e := range tree.Entries {
		p := prefix + e.Name
		switch e.Mode {
		case filemode.Dir:
			sub, err := b.store.ReadTree(e.Hash)
			if err != nil {
				return err
			}
			if err := b.walkTree(sub, p+"/", out); err != nil {
				return err
			}
		case filemode.Submodule:
			// nested commit, not a blob: skipped per spec.
		default:
			*out = append(*out, p)
		}
	}
	return nil
}
