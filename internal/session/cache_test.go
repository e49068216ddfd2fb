package session

import (
	"os"
	"testing"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestSummaryCacheRoundTripsAcrossOpen(t *testing.T) {
	withTempHome(t)
	repo := "/tmp/some/repo"

	c, err := OpenSummaryCache(repo)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := SummaryCacheKey("deadbeef", "main.go")
	if _, ok := c.Get(key); ok {
		t.Fatal("expected cache miss before Put")
	}
	if err := c.Put(key, "entry point"); err != nil {
		t.Fatalf("put: %v", err)
	}

	reopened, err := OpenSummaryCache(repo)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	summary, ok := reopened.Get(key)
	if !ok || summary != "entry point" {
		t.Fatalf("expected persisted summary, got %q ok=%v", summary, ok)
	}
}

func TestSummaryCacheKeyDependsOnBothBlobAndPath(t *testing.T) {
	k1 := SummaryCacheKey("blob1", "a.go")
	k2 := SummaryCacheKey("blob1", "b.go")
	k3 := SummaryCacheKey("blob2", "a.go")
	if k1 == k2 || k1 == k3 || k2 == k3 {
		t.Fatalf("expected distinct keys, got %q %q %q", k1, k2, k3)
	}
}

func TestDailyCostCacheTruncatesToSevenDays(t *testing.T) {
	withTempHome(t)
	repo := "/tmp/some/other-repo"
	c, err := OpenDailyCostCache(repo)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	dates := []string{
		"2026-07-20", "2026-07-21", "2026-07-22", "2026-07-23",
		"2026-07-24", "2026-07-25", "2026-07-26", "2026-07-27", "2026-07-28",
	}
	for _, d := range dates {
		if err := c.AddForDate(d, 1.5); err != nil {
			t.Fatalf("add %s: %v", d, err)
		}
	}

	if len(c.days) != retainDays {
		t.Fatalf("expected %d retained days, got %d: %v", retainDays, len(c.days), c.days)
	}
	if _, ok := c.days["2026-07-20"]; ok {
		t.Fatal("expected the oldest date to be truncated")
	}
	if c.Total("2026-07-28") != 1.5 {
		t.Fatalf("expected most recent date retained with its total, got %v", c.Total("2026-07-28"))
	}
}

func TestCacheDirIsolatesByRepoPath(t *testing.T) {
	withTempHome(t)
	a, err := CacheDir("/tmp/repo-a")
	if err != nil {
		t.Fatalf("cache dir a: %v", err)
	}
	b, err := CacheDir("/tmp/repo-b")
	if err != nil {
		t.Fatalf("cache dir b: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct cache dirs, got %q for both", a)
	}
	if _, err := os.Stat(a); err == nil {
		t.Fatal("expected cache dir to not be created just by computing its path")
	}
}
