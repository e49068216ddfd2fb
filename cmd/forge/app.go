package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"

	forgeconfig "github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/llmclient"
	"github.com/forgehq/forge/internal/obslog"
	"github.com/forgehq/forge/internal/runner"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/tools"
	"github.com/forgehq/forge/internal/vfs"
)

const defaultBranch = "main"

// app bundles the process-wide handles every subcommand needs: the git
// store, the resolved user settings, the process logger, and the model
// clients built from them. Each subcommand's RunE builds one with newApp
// and passes it down, the way the teacher's main.go builds one
// client/registry pair and passes them to the REPL loop.
type app struct {
	repoRoot string
	store    *gitstore.Store
	settings *forgeconfig.UserSettings
	log      zerolog.Logger
	reqLog   *obslog.RequestLogger

	client      *llmclient.Client
	commitModel *llmclient.Client
}

func newApp(repoRoot string, debug bool) (*app, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("forge: resolve repo root: %w", err)
	}

	logger, reqLog := obslog.New(obslog.Options{Debug: debug, RepoRoot: abs})

	store, err := openOrInitStore(abs)
	if err != nil {
		return nil, err
	}

	settingsPath, err := forgeconfig.DefaultUserSettingsPath()
	if err != nil {
		return nil, fmt.Errorf("forge: resolve settings path: %w", err)
	}
	settings, err := forgeconfig.Load(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("forge: load settings: %w", err)
	}
	if settings.LLM.APIKey == "" {
		return nil, fmt.Errorf("forge: no API key set (env FORGE_API_KEY or %s)", settingsPath)
	}

	model := settings.LLM.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := settings.LLM.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	client := llmclient.New(settings.LLM.APIKey, model, 16384, baseURL, llmclient.WithLogger(logger, reqLog))

	commitModelName := settings.LLM.SummarizationModel
	var commitModel *llmclient.Client
	if commitModelName != "" && commitModelName != model {
		commitModel = llmclient.New(settings.LLM.APIKey, commitModelName, 4096, baseURL, llmclient.WithLogger(logger, reqLog))
	} else {
		commitModel = client
	}

	return &app{
		repoRoot:    abs,
		store:       store,
		settings:    settings,
		log:         logger,
		reqLog:      reqLog,
		client:      client,
		commitModel: commitModel,
	}, nil
}

// openOrInitStore opens the git repository at root, initializing one with
// an empty initial commit on defaultBranch if none exists yet. A bare
// "forge chat" in a brand-new directory should just work, the same way the
// teacher's main.go never asks the user to run "git init" first.
func openOrInitStore(root string) (*gitstore.Store, error) {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("forge: stat .git: %w", err)
		}
		store, err := gitstore.Init(root)
		if err != nil {
			return nil, err
		}
		if err := bootstrapBranch(store, defaultBranch); err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := gitstore.Open(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// bootstrapBranch creates branch pointing at a brand-new empty-tree commit
// if it does not already exist.
func bootstrapBranch(store *gitstore.Store, branch string) error {
	if _, err := store.BranchHead(branch); err == nil {
		return nil
	}
	author := gitstore.Signature{Name: "forge", Email: "forge@localhost", When: time.Now()}
	emptyTree, err := store.BuildTree(plumbing.ZeroHash, nil, nil)
	if err != nil {
		return fmt.Errorf("forge: build initial tree: %w", err)
	}
	_, err = store.CreateCommit(nil, emptyTree, "initial commit", author, author, branch)
	if err != nil {
		return fmt.Errorf("forge: create initial commit: %w", err)
	}
	return nil
}

// openBranch builds a BaseVFS+OverlayVFS pair rooted at branch's current
// head, bootstrapping the branch off defaultBranch's head if it does not
// exist yet (spawn uses Runner.Spawn instead; this is for commands that
// operate on a branch that is expected to already exist, like resume and
// chat's implicit default branch).
func (a *app) openBranch(branch string) (*vfs.OverlayVFS, vfs.OwnerToken, error) {
	head, err := a.store.BranchHead(branch)
	if err != nil {
		if branch != defaultBranch {
			return nil, 0, fmt.Errorf("forge: branch %s: %w", branch, err)
		}
		if err := bootstrapBranch(a.store, branch); err != nil {
			return nil, 0, err
		}
		head, err = a.store.BranchHead(branch)
		if err != nil {
			return nil, 0, err
		}
	}

	base, err := vfs.NewBaseVFS(a.store, head.Hash)
	if err != nil {
		return nil, 0, err
	}
	overlay := vfs.NewOverlayVFS(base, a.store, branch)
	tok := vfs.NewOwnerToken()
	return overlay, tok, nil
}

// newRunner constructs a fully-wired Runner for branch, including the
// caches and repo config every turn needs.
func (a *app) newRunner(branch string) (*runner.Runner, func(), error) {
	overlay, tok, err := a.openBranch(branch)
	if err != nil {
		return nil, nil, err
	}
	overlay.ClaimThread(tok)
	cleanup := func() { overlay.ReleaseThread(tok) }

	repoCfg, err := forgeconfig.LoadRepoConfig(overlay)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	summaryCache, err := session.OpenSummaryCache(a.repoRoot)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	costCache, err := session.OpenDailyCostCache(a.repoRoot)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	registry := tools.NewRegistry()

	r, err := runner.New(runner.Config{
		Overlay:      overlay,
		Store:        a.store,
		Branch:       branch,
		Token:        tok,
		Registry:     registry,
		Client:       a.client,
		CommitModel:  a.commitModel,
		Summarizer:   &llmSummarizer{client: a.commitModel},
		SummaryCache: summaryCache,
		CostCache:    costCache,
		RepoConfig:   repoCfg,
		Parallelism:  a.settings.LLM.ParallelSummarization,
		TokenBudget:  a.settings.LLM.SummaryTokenBudget,
		SystemPrompt: systemPrompt(),
		AuthorName:   "forge",
		AuthorEmail:  "forge@localhost",
		Confirm:      terminalConfirm,
		Log:          a.log,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return r, cleanup, nil
}

// llmSummarizer adapts a runner.ModelClient into summary.Summarizer, the
// one-file-at-a-time prompt the SummaryEngine dispatches across its worker
// pool.
type llmSummarizer struct {
	client interface {
		SendMessage(ctx context.Context, messages []llmclient.Message, toolDefs []tools.ToolDef) (*llmclient.Response, error)
	}
}

func (s *llmSummarizer) Summarize(ctx context.Context, path, content string) (string, error) {
	prompt := fmt.Sprintf("Summarize the purpose of %s in one sentence, for a codebase map. Content:\n\n%s", path, content)
	resp, err := s.client.SendMessage(ctx, []llmclient.Message{llmclient.TextMessage("user", prompt)}, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.ContentString(), nil
}

// systemPrompt is the static instruction block every branch's prompt
// stream is seeded with.
func systemPrompt() string {
	return `You are forge, a terminal coding agent operating against a git-native session engine.
Every turn's edits land in a single commit on the current branch; nothing you write is visible
until that commit happens. Use the available tools to read, write, and explore the repository.
You may also emit inline tagged tool calls directly in your reply text (see the tool
descriptions for the exact tag syntax) when that is more natural than a function call.`
}
