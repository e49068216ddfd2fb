package session

import (
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/vfs"
)

func newTestOverlay(t *testing.T) (*vfs.OverlayVFS, vfs.OwnerToken) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	w, _ := repo.Worktree()
	f, _ := w.Filesystem.Create("README.md")
	f.Write([]byte("hello\n"))
	f.Close()
	w.Add("README.md")
	commitHash, err := w.Commit("seed", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Forge", Email: "forge@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	store, err := gitstore.Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	base, err := vfs.NewBaseVFS(store, commitHash)
	if err != nil {
		t.Fatalf("base: %v", err)
	}
	return vfs.NewOverlayVFS(base, store, "main"), vfs.NewOwnerToken()
}

func TestLoadWithNoRecordReturnsEmpty(t *testing.T) {
	fs, _ := newTestOverlay(t)
	rec, err := Load(fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Messages) != 0 || len(rec.State.Tasks) != 0 {
		t.Fatalf("expected empty record, got %+v", rec)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	fs, tok := newTestOverlay(t)
	rec := Record{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		ActiveFiles: []string{"a.go"},
	}
	rec.WriteTasks([]TaskInput{{Content: "do a thing"}})

	if err := Save(fs, tok, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", loaded.Messages)
	}
	if len(loaded.State.Tasks) != 1 || loaded.State.Tasks[0].Status != "pending" {
		t.Fatalf("unexpected tasks: %+v", loaded.State.Tasks)
	}
}

func TestUpdateTaskRejectsUnknownIDAndStatus(t *testing.T) {
	var rec Record
	rec.WriteTasks([]TaskInput{{Content: "x"}})

	if err := rec.UpdateTask(1, "bogus"); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
	if err := rec.UpdateTask(99, "completed"); err == nil {
		t.Fatal("expected unknown task id to be rejected")
	}
	if err := rec.UpdateTask(1, "in_progress"); err != nil {
		t.Fatalf("expected valid update to succeed: %v", err)
	}
	if rec.State.Tasks[0].Status != "in_progress" {
		t.Fatalf("expected status applied, got %+v", rec.State.Tasks[0])
	}
}

func TestTaskSummaryCountsByStatus(t *testing.T) {
	var rec Record
	rec.WriteTasks([]TaskInput{{Content: "a"}, {Content: "b"}})
	rec.UpdateTask(1, "completed")

	summary := rec.TaskSummary()
	if !strings.Contains(summary, "1 pending") || !strings.Contains(summary, "1 completed") {
		t.Fatalf("unexpected summary: %q", summary)
	}
}
