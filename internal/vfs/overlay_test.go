package vfs

import (
	"os"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/forgehq/forge/internal/gitstore"
)

func newTestOverlay(t *testing.T) (*OverlayVFS, *gitstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	w, _ := repo.Worktree()
	f, _ := w.Filesystem.Create("a.txt")
	f.Write([]byte("original"))
	f.Close()
	w.Add("a.txt")
	commitHash, err := w.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Forge", Email: "forge@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	store, err := gitstore.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	base, err := NewBaseVFS(store, commitHash)
	if err != nil {
		t.Fatalf("new base: %v", err)
	}
	overlay := NewOverlayVFS(base, store, "main")
	return overlay, store, dir
}

func TestReadResolvesThroughPendingThenTombstoneThenBase(t *testing.T) {
	o, _, _ := newTestOverlay(t)
	tok := NewOwnerToken()

	data, err := o.Read("a.txt")
	if err != nil || string(data) != "original" {
		t.Fatalf("expected base content, got %q err=%v", data, err)
	}

	o.Write(tok, "a.txt", []byte("edited"))
	data, err = o.Read("a.txt")
	if err != nil || string(data) != "edited" {
		t.Fatalf("expected pending content, got %q err=%v", data, err)
	}

	o.Delete(tok, "a.txt")
	if _, err := o.Read("a.txt"); err == nil {
		t.Fatal("expected tombstoned path to read as not found")
	}
}

func TestWriteClearsTombstone(t *testing.T) {
	o, _, _ := newTestOverlay(t)
	tok := NewOwnerToken()

	o.Delete(tok, "a.txt")
	o.Write(tok, "a.txt", []byte("back"))

	data, err := o.Read("a.txt")
	if err != nil || string(data) != "back" {
		t.Fatalf("expected write to clear tombstone, got %q err=%v", data, err)
	}
}

func TestListUnionsBaseAndPendingMinusTombstones(t *testing.T) {
	o, _, _ := newTestOverlay(t)
	tok := NewOwnerToken()

	o.Write(tok, "b.txt", []byte("new file"))
	o.Delete(tok, "a.txt")

	list, err := o.List(tok)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0] != "b.txt" {
		t.Fatalf("expected only b.txt visible, got %v", list)
	}
}

func TestClaimThreadPreventsOtherTokenFromMutating(t *testing.T) {
	o, _, _ := newTestOverlay(t)
	owner := NewOwnerToken()
	other := NewOwnerToken()

	o.ClaimThread(owner)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on thread-ownership violation")
		}
	}()
	o.Write(other, "x.txt", []byte("should panic"))
}

func TestClaimThreadByOwnerItselfIsFine(t *testing.T) {
	o, _, _ := newTestOverlay(t)
	owner := NewOwnerToken()
	o.ClaimThread(owner)
	o.Write(owner, "x.txt", []byte("ok"))
	o.ReleaseThread(owner)

	other := NewOwnerToken()
	o.Write(other, "y.txt", []byte("ok after release"))
}

// TestCommitWithNoPendingChangesIsRejected exercises invariant #6.
func TestCommitWithNoPendingChangesIsRejected(t *testing.T) {
	o, _, _ := newTestOverlay(t)
	tok := NewOwnerToken()

	_, err := o.Commit(tok, CommitOptions{
		Type:    gitstore.Major,
		Message: "nothing changed",
		Author:  gitstore.Signature{Name: "Forge", Email: "f@example.com", When: time.Now()},
	})
	if err == nil {
		t.Fatal("expected commit with no pending writes and no tombstones to be rejected")
	}
}

func TestCommitWritesBlobAndRebasesOverlay(t *testing.T) {
	o, store, _ := newTestOverlay(t)
	tok := NewOwnerToken()

	o.Write(tok, "a.txt", []byte("updated"))
	o.Write(tok, "new.txt", []byte("fresh"))

	sig := gitstore.Signature{Name: "Forge", Email: "f@example.com", When: time.Now()}
	newHead, err := o.Commit(tok, CommitOptions{Type: gitstore.Major, Message: "edit files", Author: sig, Committer: sig})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if strings.TrimSpace(newHead) == "" {
		t.Fatal("expected a non-empty new head hash")
	}
	if o.HasPendingChanges() {
		t.Fatal("expected pending writes/tombstones to be cleared after commit")
	}

	data, err := o.Read("a.txt")
	if err != nil || string(data) != "updated" {
		t.Fatalf("expected the rebased base to see the committed content, got %q err=%v", data, err)
	}

	ref, err := store.BranchHead("main")
	if err != nil || ref.Hash.String() != newHead {
		t.Fatalf("expected branch head to move to the new commit, got %v err=%v", ref, err)
	}
}

func TestMaterializeToTempdirWritesVisibleFiles(t *testing.T) {
	o, _, _ := newTestOverlay(t)
	tok := NewOwnerToken()
	o.Write(tok, "b.txt", []byte("staged"))

	dir, err := o.MaterializeToTempdir(tok)
	if err != nil {
		t.Fatalf("materialize_to_tempdir: %v", err)
	}

	data, err := os.ReadFile(dir + "/a.txt")
	if err != nil || string(data) != "original" {
		t.Fatalf("expected base file materialized, got %q err=%v", data, err)
	}
	data, err = os.ReadFile(dir + "/b.txt")
	if err != nil || string(data) != "staged" {
		t.Fatalf("expected pending file materialized, got %q err=%v", data, err)
	}
}
