// Package gitstore provides low-level git object access for the session
// engine: reading blobs/trees, building new trees from a base plus a set of
// changes, writing commits, and moving branch refs. Everything above this
// package (the overlay filesystem, the turn runner) goes through Store
// rather than touching go-git directly.
package gitstore

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Store wraps a go-git repository and exposes the object-graph operations
// the session engine needs.
type Store struct {
	repo *gogit.Repository
}

// Open opens an existing repository rooted at path.
func Open(path string) (*Store, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("gitstore: open %s: %w", path, err)
	}
	return &Store{repo: repo}, nil
}

// Init creates a new repository rooted at path.
func Init(path string) (*Store, error) {
	repo, err := gogit.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("gitstore: init %s: %w", path, err)
	}
	return &Store{repo: repo}, nil
}

// Signature identifies a commit's author or committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) toObject() object.Signature {
	return object.Signature{Name: s.Name, Email: s.Email, When: s.When}
}

// CommitRef names a branch and the commit it currently points to.
type CommitRef struct {
	Name string
	Hash plumbing.Hash
}

// BranchHead resolves the current commit hash of the named local branch.
func (s *Store) BranchHead(name string) (CommitRef, error) {
	ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return CommitRef{}, fmt.Errorf("gitstore: branch head %s: %w", name, err)
	}
	return CommitRef{Name: name, Hash: ref.Hash()}, nil
}

// ReadBlob reads the bytes of the file at path within the tree rooted at
// treeHash.
func (s *Store) ReadBlob(treeHash plumbing.Hash, path string) ([]byte, error) {
	tree, err := s.repo.TreeObject(treeHash)
	if err != nil {
		return nil, fmt.Errorf("gitstore: read tree %s: %w", treeHash, err)
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("gitstore: read blob %s: %w", path, err)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ReadTree returns the tree object for oid.
func (s *Store) ReadTree(oid plumbing.Hash) (*object.Tree, error) {
	tree, err := s.repo.TreeObject(oid)
	if err != nil {
		return nil, fmt.Errorf("gitstore: read tree %s: %w", oid, err)
	}
	return tree, nil
}

// CreateBlob writes data as a new blob object and returns its oid.
func (s *Store) CreateBlob(data []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

// CreateCommit writes a new commit object with the given parents and tree,
// optionally moving ref to point at it.
func (s *Store) CreateCommit(parents []plumbing.Hash, tree plumbing.Hash, msg string, author, committer Signature, ref string) (plumbing.Hash, error) {
	commit := &object.Commit{
		Author:       author.toObject(),
		Committer:    committer.toObject(),
		Message:      msg,
		TreeHash:     tree,
		ParentHashes: append([]plumbing.Hash(nil), parents...),
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitstore: encode commit: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitstore: write commit: %w", err)
	}
	if ref != "" {
		if err := s.MoveRef(ref, hash); err != nil {
			return plumbing.ZeroHash, err
		}
	}
	return hash, nil
}

// MoveRef sets branch name to point at oid, creating the ref if absent.
func (s *Store) MoveRef(name string, oid plumbing.Hash) error {
	refName := plumbing.NewBranchReferenceName(name)
	newRef := plumbing.NewHashReference(refName, oid)
	if err := s.repo.Storer.SetReference(newRef); err != nil {
		return fmt.Errorf("gitstore: move ref %s: %w", name, err)
	}
	return nil
}

// Branches lists local branch names, sorted.
func (s *Store) Branches() ([]string, error) {
	iter, err := s.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("gitstore: list branches: %w", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitstore: list branches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// MergeBase returns the best common ancestor of a and b, as go-git computes
// it (lowest common ancestor over the first-parent-and-merge DAG).
func (s *Store) MergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	ca, err := s.repo.CommitObject(a)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitstore: merge_base: %w", err)
	}
	cb, err := s.repo.CommitObject(b)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitstore: merge_base: %w", err)
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitstore: merge_base: %w", err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, errors.New("gitstore: no common ancestor")
	}
	return bases[0].Hash, nil
}

// Commit returns the commit object for hash.
func (s *Store) Commit(hash plumbing.Hash) (*object.Commit, error) {
	c, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("gitstore: read commit %s: %w", hash, err)
	}
	return c, nil
}

// Repository exposes the underlying go-git handle for packages (vfs) that
// need worktree-level operations not wrapped here.
func (s *Store) Repository() *gogit.Repository {
	return s.repo
}
