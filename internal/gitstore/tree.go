package gitstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Insert is one path -> blob-oid change to apply when building a tree.
type Insert struct {
	Path string
	Oid  plumbing.Hash
	Mode filemode.FileMode
}

// BuildTree constructs a new tree oid from base plus a set of insertions and
// deletions, reusing every subtree that neither an insert nor a delete
// touches. base may be the zero hash, meaning "empty tree".
func (s *Store) BuildTree(base plumbing.Hash, inserts []Insert, deletes []string) (plumbing.Hash, error) {
	var baseTree *object.Tree
	if base != plumbing.ZeroHash {
		t, err := s.repo.TreeObject(base)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("gitstore: build_tree base %s: %w", base, err)
		}
		baseTree = t
	}
	return s.buildTreeLevel(baseTree, "", inserts, deletes)
}

// buildTreeLevel handles one directory level. prefix is the path of this
// level from the root, with a trailing slash, or "" at the root.
func (s *Store) buildTreeLevel(base *object.Tree, prefix string, inserts []Insert, deletes []string) (plumbing.Hash, error) {
	type childChange struct {
		inserts []Insert
		deletes []string
	}
	children := make(map[string]*childChange)

	touch := func(name string) *childChange {
		c, ok := children[name]
		if !ok {
			c = &childChange{}
			children[name] = c
		}
		return c
	}

	var directInserts []Insert
	for _, ins := range inserts {
		rel := strings.TrimPrefix(ins.Path, prefix)
		if rel == ins.Path && prefix != "" {
			continue // not under this prefix
		}
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			name := rel[:i]
			c := touch(name)
			c.inserts = append(c.inserts, Insert{Path: ins.Path, Oid: ins.Oid, Mode: ins.Mode})
		} else {
			directInserts = append(directInserts, ins)
		}
	}

	var directDeletes []string
	for _, del := range deletes {
		rel := strings.TrimPrefix(del, prefix)
		if rel == del && prefix != "" {
			continue
		}
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			name := rel[:i]
			c := touch(name)
			c.deletes = append(c.deletes, del)
		} else {
			directDeletes = append(directDeletes, del)
		}
	}

	// Start from base entries, applying direct inserts/deletes and
	// recursing into touched subtrees.
	entryByName := make(map[string]object.TreeEntry)
	var order []string
	if base != nil {
		for _, e := range base.Entries {
			entryByName[e.Name] = e
			order = append(order, e.Name)
		}
	}

	for _, del := range directDeletes {
		name := del
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		delete(entryByName, name)
	}

	for _, ins := range directInserts {
		name := ins.Path
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		mode := ins.Mode
		if mode == 0 {
			mode = filemode.Regular
		}
		if _, existed := entryByName[name]; !existed {
			order = append(order, name)
		}
		entryByName[name] = object.TreeEntry{Name: name, Mode: mode, Hash: ins.Oid}
	}

	// Nothing touches this level at all: reuse the base subtree verbatim so
	// build_tree(base, {}, {}) reproduces base.tree_oid exactly, and so an
	// untouched subtree's oid never changes.
	if base != nil && len(directInserts) == 0 && len(directDeletes) == 0 && len(children) == 0 {
		return base.Hash, nil
	}

	for name, change := range children {
		var baseSub *object.Tree
		if e, ok := entryByName[name]; ok && e.Mode == filemode.Dir {
			t, err := s.repo.TreeObject(e.Hash)
			if err != nil {
				return plumbing.ZeroHash, fmt.Errorf("gitstore: build_tree subtree %s: %w", name, err)
			}
			baseSub = t
		}
		childPrefix := prefix + name + "/"
		subHash, err := s.buildTreeLevel(baseSub, childPrefix, change.inserts, change.deletes)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if _, existed := entryByName[name]; !existed {
			order = append(order, name)
		}
		entryByName[name] = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: subHash}
	}

	seen := make(map[string]bool, len(order))
	var uniqueNames []string
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		uniqueNames = append(uniqueNames, name)
	}
	sort.Slice(uniqueNames, func(i, j int) bool {
		return treeSortKey(entryByName[uniqueNames[i]]) < treeSortKey(entryByName[uniqueNames[j]])
	})

	entries := make([]object.TreeEntry, 0, len(uniqueNames))
	for _, name := range uniqueNames {
		entries = append(entries, entryByName[name])
	}

	tree := &object.Tree{Entries: entries}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitstore: encode tree: %w", err)
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

// treeSortKey reproduces git's tree-entry ordering, which compares directory
// names as though they carried a trailing slash.
func treeSortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}
