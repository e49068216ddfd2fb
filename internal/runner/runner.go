// Package runner implements SessionRunner: the turn-loop coordinator that
// drives one branch's conversation — streaming the model, executing tool
// calls and inline commands against the overlay, reconciling side effects
// back into the prompt stream, and closing each turn with a classified
// commit. Everything it touches (internal/blocks, internal/tools,
// internal/vfs, internal/gitstore) stays a single-purpose package; this is
// where their calls are sequenced.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/forgehq/forge/internal/blocks"
	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/ignore"
	"github.com/forgehq/forge/internal/llmclient"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/summary"
	"github.com/forgehq/forge/internal/tools"
	"github.com/forgehq/forge/internal/vfs"
)

// State is one of the SessionRunner state-machine states.
type State int

const (
	Idle State = iota
	Running
	WaitingApproval
	WaitingInput
	WaitingChildren
	Completed
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case WaitingApproval:
		return "waiting_approval"
	case WaitingInput:
		return "waiting_input"
	case WaitingChildren:
		return "waiting_children"
	case Completed:
		return "completed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MaxIterationsPerTurn bounds the stream/tool-call round trips within a
// single send_message call, the same backstop the teacher's agent loop
// carries against a model that never stops calling tools.
const MaxIterationsPerTurn = 50

// ModelClient is the minimal surface the runner needs from the transport
// layer, mirroring the teacher's llm.LLMClient interface so the runner
// never depends on llmclient's concrete retry/transport details — only
// *llmclient.Client's exported methods satisfy it, but tests supply fakes.
type ModelClient interface {
	SendMessage(ctx context.Context, messages []llmclient.Message, toolDefs []tools.ToolDef) (*llmclient.Response, error)
	StreamMessage(ctx context.Context, messages []llmclient.Message, toolDefs []tools.ToolDef) (<-chan llmclient.StreamEvent, error)
}

// ConfirmFunc decides whether a mutating tool's pending change is approved.
// A nil ConfirmFunc means no UI is attached (headless/API-mode operation):
// every confirmation is denied and the tool records a synthetic failure
// result, per spec §7's ApprovalRequired handling.
type ConfirmFunc func(ctx context.Context, confirm *tools.NeedsConfirmation) bool

// Config bundles everything New needs to construct a Runner for one branch.
type Config struct {
	Overlay  *vfs.OverlayVFS
	Store    *gitstore.Store
	Branch   string
	Token    vfs.OwnerToken
	Registry *tools.Registry

	Client       ModelClient // full model, used for the turn loop
	CommitModel  ModelClient // cheap model for commit-message generation; falls back to Client if nil
	Summarizer   summary.Summarizer
	SummaryCache *session.SummaryCache
	CostCache    *session.DailyCostCache

	RepoConfig  config.RepoConfig
	Parallelism int
	TokenBudget int

	SystemPrompt string
	AuthorName   string
	AuthorEmail  string

	Confirm ConfirmFunc
	Log     zerolog.Logger
}

// Runner coordinates one branch's conversation per spec §4.7. It is not
// safe for concurrent use — exactly one goroutine drives the turn loop at a
// time, the same single-coordinator-thread discipline the overlay's
// OwnerToken enforces at the VFS layer.
type Runner struct {
	overlay  *vfs.OverlayVFS
	store    *gitstore.Store
	branch   string
	tok      vfs.OwnerToken
	registry *tools.Registry
	manager  *blocks.Manager

	client      ModelClient
	commitModel ModelClient
	summarizer  summary.Summarizer

	summaryCache *session.SummaryCache
	costCache    *session.DailyCostCache
	matcher      *ignore.Matcher
	parallelism  int
	tokenBudget  int

	authorName  string
	authorEmail string

	confirm ConfirmFunc
	log     zerolog.Logger

	state  State
	cancel atomic.Bool

	rec session.Record

	// Per-turn scratch state, reset at the start of every send_message.
	executedIDs       map[string]bool
	midTurnCommitFlag bool
	pendingMidTurn    string
	generationIDs     []string
}

// New constructs a Runner positioned over cfg.Overlay, loading any existing
// session record from the branch and seeding the prompt stream's system
// block.
func New(cfg Config) (*Runner, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("runner: Config.Client is required")
	}
	commitModel := cfg.CommitModel
	if commitModel == nil {
		commitModel = cfg.Client
	}

	rec, err := session.Load(cfg.Overlay)
	if err != nil {
		return nil, fmt.Errorf("runner: load session record: %w", err)
	}

	r := &Runner{
		overlay:      cfg.Overlay,
		store:        cfg.Store,
		branch:       cfg.Branch,
		tok:          cfg.Token,
		registry:     cfg.Registry,
		manager:      blocks.New(cfg.SystemPrompt),
		client:       cfg.Client,
		commitModel:  commitModel,
		summarizer:   cfg.Summarizer,
		summaryCache: cfg.SummaryCache,
		costCache:    cfg.CostCache,
		matcher:      ignore.New(cfg.RepoConfig.SummaryExclusions),
		parallelism:  cfg.Parallelism,
		tokenBudget:  cfg.TokenBudget,
		authorName:   cfg.AuthorName,
		authorEmail:  cfg.AuthorEmail,
		confirm:      cfg.Confirm,
		log:          cfg.Log,
		state:        Idle,
		rec:          rec,
	}

	r.registry.SetExploreFunc(r.runExplore)
	r.registry.SetTaskCallbacks(tools.TaskCallbacks{
		WriteTasks: func(inputs []tools.TaskInput) string {
			converted := make([]session.TaskInput, len(inputs))
			for i, in := range inputs {
				converted[i] = session.TaskInput{Content: in.Content, Description: in.Description, ActiveForm: in.ActiveForm}
			}
			return r.rec.WriteTasks(converted)
		},
		UpdateTask: func(id int, status string) error {
			return r.rec.UpdateTask(id, status)
		},
		ReadTasks: func() string {
			return r.rec.TaskSummary()
		},
	})

	return r, nil
}

// State reports the runner's current state-machine state.
func (r *Runner) State() State { return r.state }

// Manager exposes the prompt-stream manager, e.g. for a caller rendering
// the conversation for display.
func (r *Runner) Manager() *blocks.Manager { return r.manager }

// Cancel requests cooperative cancellation of the in-flight turn, per
// spec §4.7's Cancellation rule: pending overlay changes are dropped, any
// incomplete trailing assistant block is removed, the state returns to
// Idle, and no commit is produced. The cancel flag is checked at chunk and
// tool-call boundaries; there is no hard preemption.
func (r *Runner) Cancel() {
	r.cancel.Store(true)
}

func (r *Runner) cancelled() bool {
	return r.cancel.Load()
}
