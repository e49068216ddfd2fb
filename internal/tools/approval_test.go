package tools

import (
	"context"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/vfs"
)

func newApprovalTestFS(t *testing.T, toolSource string) (*vfs.OverlayVFS, vfs.OwnerToken) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	w, _ := repo.Worktree()
	f, _ := w.Filesystem.Create("tools/greet.sh")
	f.Write([]byte(toolSource))
	f.Close()
	w.Add("tools/greet.sh")
	commitHash, err := w.Commit("seed tool", &gogit.CommitOptions{
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
		t.Fatalf("new base: %v", err)
	}
	return vfs.NewOverlayVFS(base, store, "main"), vfs.NewOwnerToken()
}

const greetToolSource = `---
{"name":"greet","description":"say hi","parameters":{"type":"object","properties":{}}}
---
echo "hello from greet"
`

func TestDiscoverUserToolsParsesFrontmatterAndBody(t *testing.T) {
	fs, tok := newApprovalTestFS(t, greetToolSource)

	tools, err := DiscoverUserTools(fs, tok)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Name != "greet" || tools[0].Description != "say hi" {
		t.Fatalf("unexpected parsed tool: %+v", tools[0])
	}
	if tools[0].Body != `echo "hello from greet"`+"\n" {
		t.Fatalf("unexpected body: %q", tools[0].Body)
	}
}

func TestApprovalGateRejectsUnapprovedAndAcceptsAfterApprove(t *testing.T) {
	fs, tok := newApprovalTestFS(t, greetToolSource)
	tools, err := DiscoverUserTools(fs, tok)
	if err != nil || len(tools) != 1 {
		t.Fatalf("discover: %v (%d tools)", err, len(tools))
	}
	tool := tools[0]

	gate := NewApprovalGate(fs, tok)
	if gate.IsApproved(tool) {
		t.Fatal("expected a freshly discovered tool to be unapproved")
	}
	pending := gate.PendingApprovals(tools)
	if len(pending) != 1 || pending[0].Name != "greet" {
		t.Fatalf("expected greet pending approval, got %+v", pending)
	}

	res, err := gate.Invoke(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("expected invocation of an unapproved tool to fail, got %+v", res)
	}

	if err := gate.Approve(tool); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !gate.IsApproved(tool) {
		t.Fatal("expected tool to be approved after Approve")
	}
	if len(gate.PendingApprovals(tools)) != 0 {
		t.Fatal("expected no pending approvals after approving the only tool")
	}
}

func TestApprovalRevokedWhenSourceChanges(t *testing.T) {
	fs, tok := newApprovalTestFS(t, greetToolSource)
	tools, _ := DiscoverUserTools(fs, tok)
	tool := tools[0]
	gate := NewApprovalGate(fs, tok)
	if err := gate.Approve(tool); err != nil {
		t.Fatalf("approve: %v", err)
	}

	edited := tool
	edited.Source = []byte(greetToolSource + "echo extra\n")
	if gate.IsApproved(edited) {
		t.Fatal("expected a modified tool source to invalidate the prior approval")
	}
}
