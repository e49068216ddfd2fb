package gitstore

import (
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func sig() Signature {
	return Signature{Name: "Forge", Email: "forge@example.com", When: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func initRepoWithFile(t *testing.T, path, content string) (*Store, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	f, err := w.Filesystem.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	f.Write([]byte(content))
	f.Close()
	if _, err := w.Add(path); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := w.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Forge", Email: "forge@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s, repo
}

func TestBranchHeadAndReadBlob(t *testing.T) {
	s, repo := initRepoWithFile(t, "a.txt", "content-a")

	headRef, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}

	ref, err := s.BranchHead("main")
	if err != nil {
		t.Fatalf("branch_head: %v", err)
	}
	if ref.Hash != headRef.Hash() {
		t.Fatalf("expected branch head %s, got %s", headRef.Hash(), ref.Hash)
	}

	commit, err := s.Commit(ref.Hash)
	if err != nil {
		t.Fatalf("commit lookup: %v", err)
	}
	data, err := s.ReadBlob(commit.TreeHash, "a.txt")
	if err != nil {
		t.Fatalf("read_blob: %v", err)
	}
	if string(data) != "content-a" {
		t.Fatalf("expected content-a, got %q", data)
	}
}

func TestBuildTreeEmptyChangeReproducesBase(t *testing.T) {
	s, repo := initRepoWithFile(t, "dir/nested.txt", "nested")
	headRef, _ := repo.Head()
	commit, _ := s.Commit(headRef.Hash())

	newTree, err := s.BuildTree(commit.TreeHash, nil, nil)
	if err != nil {
		t.Fatalf("build_tree: %v", err)
	}
	if newTree != commit.TreeHash {
		t.Fatalf("build_tree(base, {}, {}) must reproduce base.tree_oid: got %s want %s", newTree, commit.TreeHash)
	}
}

func TestBuildTreeInsertAndDelete(t *testing.T) {
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	w, _ := repo.Worktree()
	f1, _ := w.Filesystem.Create("keep.txt")
	f1.Write([]byte("keep"))
	f1.Close()
	f2, _ := w.Filesystem.Create("remove.txt")
	f2.Write([]byte("remove"))
	f2.Close()
	w.Add("keep.txt")
	w.Add("remove.txt")
	commitHash, err := w.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Forge", Email: "forge@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	commit, err := s.Commit(commitHash)
	if err != nil {
		t.Fatalf("commit lookup: %v", err)
	}

	newBlob, err := s.CreateBlob([]byte("new nested content"))
	if err != nil {
		t.Fatalf("create_blob: %v", err)
	}

	newTree, err := s.BuildTree(commit.TreeHash,
		[]Insert{{Path: "sub/new.txt", Oid: newBlob}},
		[]string{"remove.txt"},
	)
	if err != nil {
		t.Fatalf("build_tree: %v", err)
	}

	data, err := s.ReadBlob(newTree, "sub/new.txt")
	if err != nil || string(data) != "new nested content" {
		t.Fatalf("expected inserted nested file, got %q err=%v", data, err)
	}
	if _, err := s.ReadBlob(newTree, "remove.txt"); err == nil {
		t.Fatal("expected remove.txt to be gone after delete")
	}
	if data, err := s.ReadBlob(newTree, "keep.txt"); err != nil || string(data) != "keep" {
		t.Fatalf("expected untouched keep.txt to survive, got %q err=%v", data, err)
	}
}

func TestBuildTreeDeleteNestedPath(t *testing.T) {
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	w, _ := repo.Worktree()
	if err := w.Filesystem.MkdirAll("sub", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f1, _ := w.Filesystem.Create("sub/keep.txt")
	f1.Write([]byte("keep"))
	f1.Close()
	f2, _ := w.Filesystem.Create("sub/remove.txt")
	f2.Write([]byte("remove"))
	f2.Close()
	w.Add("sub/keep.txt")
	w.Add("sub/remove.txt")
	commitHash, err := w.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Forge", Email: "forge@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	commit, err := s.Commit(commitHash)
	if err != nil {
		t.Fatalf("commit lookup: %v", err)
	}

	newTree, err := s.BuildTree(commit.TreeHash, nil, []string{"sub/remove.txt"})
	if err != nil {
		t.Fatalf("build_tree: %v", err)
	}

	if _, err := s.ReadBlob(newTree, "sub/remove.txt"); err == nil {
		t.Fatal("expected sub/remove.txt to be gone after nested delete")
	}
	if data, err := s.ReadBlob(newTree, "sub/keep.txt"); err != nil || string(data) != "keep" {
		t.Fatalf("expected untouched sub/keep.txt to survive, got %q err=%v", data, err)
	}
}

func TestCreateCommitAndMoveRef(t *testing.T) {
	s, repo := initRepoWithFile(t, "a.txt", "a")
	headRef, _ := repo.Head()
	commit, _ := s.Commit(headRef.Hash())

	hash, err := s.CreateCommit([]plumbing.Hash{headRef.Hash()}, commit.TreeHash, "second", sig(), sig(), "main")
	if err != nil {
		t.Fatalf("create_commit: %v", err)
	}

	ref, err := s.BranchHead("main")
	if err != nil {
		t.Fatalf("branch_head: %v", err)
	}
	if ref.Hash != hash {
		t.Fatalf("expected move_ref to point main at %s, got %s", hash, ref.Hash)
	}
}
