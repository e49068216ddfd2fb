package gitstore

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Index is the flat result of a three-way tree merge: every path present in
// at least one of ancestor/ours/theirs, mapped to its resolved blob oid.
// Paths deleted in the merge result are simply absent.
type Index map[string]IndexEntry

// IndexEntry is one resolved path in a merge Index.
type IndexEntry struct {
	Oid  plumbing.Hash
	Mode filemode.FileMode
}

type leaf struct {
	oid  plumbing.Hash
	mode filemode.FileMode
}

// MergeTrees performs a three-way merge of ours and theirs against their
// common ancestor, returning the resolved Index plus a sorted, deduplicated
// list of conflicting paths. When conflicts is non-empty, Index reflects
// "ours" at the conflicting paths, and the caller (per spec) must refuse the
// merge rather than act on the returned Index.
func (s *Store) MergeTrees(ancestor, ours, theirs plumbing.Hash) (Index, []string, error) {
	aLeaves, err := s.flattenTree(ancestor)
	if err != nil {
		return nil, nil, fmt.Errorf("gitstore: merge_trees ancestor: %w", err)
	}
	oLeaves, err := s.flattenTree(ours)
	if err != nil {
		return nil, nil, fmt.Errorf("gitstore: merge_trees ours: %w", err)
	}
	tLeaves, err := s.flattenTree(theirs)
	if err != nil {
		return nil, nil, fmt.Errorf("gitstore: merge_trees theirs: %w", err)
	}

	paths := make(map[string]bool)
	for p := range aLeaves {
		paths[p] = true
	}
	for p := range oLeaves {
		paths[p] = true
	}
	for p := range tLeaves {
		paths[p] = true
	}

	idx := make(Index, len(paths))
	var conflicts []string

	for p := range paths {
		a, aOK := aLeaves[p]
		o, oOK := oLeaves[p]
		t, tOK := tLeaves[p]

		switch {
		case oOK && tOK && o == t:
			idx[p] = IndexEntry{Oid: o.oid, Mode: o.mode}
		case oOK && aOK && o == a && tOK:
			// unchanged in ours, take theirs (possibly a deletion below)
			idx[p] = IndexEntry{Oid: t.oid, Mode: t.mode}
		case oOK && aOK && o == a && !tOK:
			// theirs deleted it, ours left it unchanged: delete
		case tOK && aOK && t == a && oOK:
			idx[p] = IndexEntry{Oid: o.oid, Mode: o.mode}
		case tOK && aOK && t == a && !oOK:
			// ours deleted it, theirs left it unchanged: delete
		case oOK && !aOK && !tOK:
			// added only in ours
			idx[p] = IndexEntry{Oid: o.oid, Mode: o.mode}
		case tOK && !aOK && !oOK:
			// added only in theirs
			idx[p] = IndexEntry{Oid: t.oid, Mode: t.mode}
		case !oOK && !tOK:
			// deleted on both sides: nothing to do
		default:
			conflicts = append(conflicts, p)
			if oOK {
				idx[p] = IndexEntry{Oid: o.oid, Mode: o.mode}
			}
		}
	}

	sort.Strings(conflicts)
	return idx, conflicts, nil
}

// flattenTree walks a tree recursively and returns every blob path mapped to
// its oid and mode, skipping submodule entries.
func (s *Store) flattenTree(root plumbing.Hash) (map[string]leaf, error) {
	out := make(map[string]leaf)
	if root == plumbing.ZeroHash {
		return out, nil
	}
	tree, err := s.repo.TreeObject(root)
	if err != nil {
		return nil, err
	}
	var walk func(t *object.Tree, prefix string) error
	walk = func(t *object.Tree, prefix string) error {
		for _, e := range t.Entries {
			p := prefix + e.Name
			switch e.Mode {
			case filemode.Dir:
				sub, err := s.repo.TreeObject(e.Hash)
				if err != nil {
					return err
				}
				if err := walk(sub, p+"/"); err != nil {
					return err
				}
			case filemode.Submodule:
				// skipped: nested commit, not a blob
			default:
				out[p] = leaf{oid: e.Hash, mode: e.Mode}
			}
		}
		return nil
	}
	if err := walk(tree, ""); err != nil {
		return nil, err
	}
	return out, nil
}
