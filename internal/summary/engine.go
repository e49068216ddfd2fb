// Package summary implements the SummaryEngine: breadth-first file
// listing under the exclusion ruleset, content-hash cache lookups, and a
// bounded parallel worker pool that dispatches short per-file summaries
// to seed the model's codebase map.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/forgehq/forge/internal/ignore"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/vfs"
)

// Summarizer is the minimal model-calling surface the engine needs. It is
// defined here rather than imported from internal/llmclient so this
// package never depends on the transport layer — the dependency runs the
// other way, the same reasoning recorded for internal/tools.ToolDef.
type Summarizer interface {
	Summarize(ctx context.Context, path, content string) (string, error)
}

// Result is one file's place in the codebase map: either a cached
// summary, a freshly generated one, or an entry in the beyond-budget list.
type Result struct {
	Path           string
	Summary        string // empty if BeyondBudget
	BeyondBudget   bool
	EstimateTokens int
}

// Engine runs the summarization algorithm against a single overlay
// snapshot.
type Engine struct {
	fs          *vfs.OverlayVFS
	tok         vfs.OwnerToken
	cache       *session.SummaryCache
	matcher     *ignore.Matcher
	model       Summarizer
	parallelism int
	tokenBudget int
}

// Config bundles the engine's tunables, mirroring the user-settings keys
// llm.parallel_summarization (min 1) and llm.summary_token_budget (min 1000).
type Config struct {
	Parallelism int
	TokenBudget int
}

// New constructs an Engine. Parallelism below 1 and TokenBudget below
// 1000 are clamped to their minimums, matching the user-settings
// validation rule named in the spec rather than panicking on bad config.
func New(fs *vfs.OverlayVFS, tok vfs.OwnerToken, cache *session.SummaryCache, matcher *ignore.Matcher, model Summarizer, cfg Config) *Engine {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.TokenBudget < 1000 {
		cfg.TokenBudget = 1000
	}
	return &Engine{
		fs:          fs,
		tok:         tok,
		cache:       cache,
		matcher:     matcher,
		model:       model,
		parallelism: cfg.Parallelism,
		tokenBudget: cfg.TokenBudget,
	}
}

// estimateTokens is the spec's deliberately coarse token estimator:
// len(utf8 bytes) / 3.
func estimateTokens(s string) int {
	return len(s) / 3
}

// breadthFirstSort orders paths by depth (number of path separators) then
// alphabetically within a depth, so shallow, high-signal files seed the
// cache before deeply nested ones.
func breadthFirstSort(paths []string) {
	depth := func(p string) int { return strings.Count(p, "/") }
	sort.Slice(paths, func(i, j int) bool {
		di, dj := depth(paths[i]), depth(paths[j])
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
}

// Run executes the full algorithm: list, filter, sort, hash, look up,
// budget, dispatch, cache, return.
func (e *Engine) Run(ctx context.Context) ([]Result, error) {
	all, err := e.fs.List(e.tok)
	if err != nil {
		return nil, fmt.Errorf("summary: list files: %w", err)
	}

	var candidates []string
	for _, p := range all {
		if !e.matcher.Match(p) {
			candidates = append(candidates, p)
		}
	}
	breadthFirstSort(candidates)

	type pending struct {
		path    string
		content string
		key     string
	}

	results := make([]Result, 0, len(candidates))
	var toFetch []pending
	usedTokens := 0

	for _, p := range candidates {
		content, err := e.fs.Read(p)
		if err != nil {
			continue
		}
		key := contentKey(p, content)
		if cached, ok := e.cache.Get(key); ok {
			tk := estimateTokens(cached)
			if usedTokens+tk > e.tokenBudget {
				results = append(results, Result{Path: p, BeyondBudget: true})
				continue
			}
			usedTokens += tk
			results = append(results, Result{Path: p, Summary: cached, EstimateTokens: tk})
			continue
		}
		// Unknown cost until generated; reserve a conservative estimate
		// against the budget so a cascade of misses can't blow past it.
		const placeholderCost = 60
		if usedTokens+placeholderCost > e.tokenBudget {
			results = append(results, Result{Path: p, BeyondBudget: true})
			continue
		}
		usedTokens += placeholderCost
		toFetch = append(toFetch, pending{path: p, content: string(content), key: key})
	}

	if len(toFetch) > 0 && e.model != nil {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallelism)
		generated := make(map[string]Result, len(toFetch))

		for _, item := range toFetch {
			item := item
			g.Go(func() error {
				raw, err := e.model.Summarize(gctx, item.path, item.content)
				if err != nil {
					// A single failed summary does not fail the whole run;
					// the file just falls back to beyond-budget treatment.
					mu.Lock()
					generated[item.path] = Result{Path: item.path, BeyondBudget: true}
					mu.Unlock()
					return nil
				}
				text := parseSummaryTag(raw)
				if err := e.cache.Put(item.key, text); err != nil {
					return fmt.Errorf("cache summary for %s: %w", item.path, err)
				}
				mu.Lock()
				generated[item.path] = Result{Path: item.path, Summary: text, EstimateTokens: estimateTokens(text)}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, item := range toFetch {
			results = append(results, generated[item.path])
		}
	} else {
		for _, item := range toFetch {
			results = append(results, Result{Path: item.path, BeyondBudget: true})
		}
	}

	breadthFirstSort2(results)
	return results, nil
}

func breadthFirstSort2(results []Result) {
	depth := func(p string) int { return strings.Count(p, "/") }
	sort.Slice(results, func(i, j int) bool {
		di, dj := depth(results[i].Path), depth(results[j].Path)
		if di != dj {
			return di < dj
		}
		return results[i].Path < results[j].Path
	})
}

// contentKey computes the cache key for a file via session.SummaryCacheKey.
// The overlay does not expose a blob OID for pending (uncommitted)
// content, so this always hashes the content bytes directly as the
// "blob_oid" half of the key — identical to the committed case, since a
// git blob OID is itself derived from the content.
func contentKey(filePath string, content []byte) string {
	sum := sha256.Sum256(content)
	return session.SummaryCacheKey(hex.EncodeToString(sum[:]), filePath)
}

// parseSummaryTag extracts the <summary>...</summary> section from a
// model response, falling back to the trimmed raw text if the tag is
// absent (defensive against a model that forgets the wrapper).
func parseSummaryTag(raw string) string {
	const open, close = "<summary>", "</summary>"
	start := strings.Index(raw, open)
	if start < 0 {
		return strings.TrimSpace(raw)
	}
	start += len(open)
	end := strings.Index(raw[start:], close)
	if end < 0 {
		return strings.TrimSpace(raw[start:])
	}
	return strings.TrimSpace(raw[start : start+end])
}

// BeyondBudgetGuidance is the text shown for files in the beyond-budget
// list, directing the model to the scout tool instead of a summary.
func BeyondBudgetGuidance(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Files beyond the summary budget (use the scout tool to explore these):\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "  %s\n", filepath.ToSlash(p))
	}
	return b.String()
}
