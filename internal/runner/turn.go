package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/llmclient"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/summary"
	"github.com/forgehq/forge/internal/vfs"
)

// SendMessage runs one turn per spec §4.7: append the user message, stream
// the model, execute inline and API tool calls as fail-fast pipelines,
// reconcile file-content side effects, and loop until the model stops
// requesting tools — then close the turn with a classified commit.
func (r *Runner) SendMessage(ctx context.Context, text string) error {
	if r.state != Idle && r.state != WaitingInput {
		return fmt.Errorf("runner: send_message called in state %s", r.state)
	}

	r.manager.AppendUserMessage(text)
	r.executedIDs = make(map[string]bool)
	r.midTurnCommitFlag = false
	r.generationIDs = nil
	r.state = Running

	for iteration := 0; iteration < MaxIterationsPerTurn; iteration++ {
		if r.cancelled() {
			r.handleCancel()
			return nil
		}

		resp, err := r.streamOnce(ctx)
		if err != nil {
			if r.handleTransportError(err) {
				continue // retried, or recorded as a self-correcting user message
			}
			r.state = Error
			return err
		}

		toolsRan, err := r.handleEndOfStream(ctx, resp)
		if err != nil {
			r.state = Error
			return err
		}
		if !toolsRan {
			break
		}
	}

	return r.endOfTurnCommit(ctx)
}

// streamOnce opens one streaming call and accumulates it into a Response.
func (r *Runner) streamOnce(ctx context.Context) (*llmclient.Response, error) {
	apiMsgs := r.manager.ToMessages(recapWindow)
	messages := toLLMMessages(apiMsgs)
	toolDefs := r.registry.Definitions()

	events, err := r.client.StreamMessage(ctx, messages, toolDefs)
	if err != nil {
		return nil, err
	}
	resp, err := llmclient.AccumulateStream(events, nil)
	if err != nil {
		return nil, err
	}
	if resp.GenerationID != "" {
		r.generationIDs = append(r.generationIDs, resp.GenerationID)
	}
	return resp, nil
}

// recapWindow is the minimum number of most recent live blocks covered by
// the trailing recap that ToMessages appends; the recap also reaches back
// to the latest user message. Every block is still sent in full.
const recapWindow = 20

// handleTransportError classifies a streaming failure per spec §7. A
// retryable classification that the transport layer already exhausted its
// own backoff budget on is surfaced as a synthetic user message so the
// model can self-correct; true fatal errors are returned to the caller.
func (r *Runner) handleTransportError(err error) bool {
	if te, ok := llmclient.AsFatalTransportError(err); ok {
		r.manager.AppendUserMessage(fmt.Sprintf("The model provider returned an error (status %d): %s", te.StatusCode, te.Body))
		return true
	}
	if te, ok := llmclient.AsRetryableTransportError(err); ok {
		r.manager.AppendUserMessage(fmt.Sprintf("The model provider is temporarily unavailable (status %d): %s. Retrying may help.", te.StatusCode, te.Body))
		return true
	}
	var sae *llmclient.StreamAccumulateError
	if errors.As(err, &sae) {
		r.manager.AppendUserMessage(fmt.Sprintf("Stream interrupted: %s", sae.Err))
		return true
	}
	return false
}

// handleEndOfStream implements step 3 of the turn: inline commands first
// (truncating the assistant message at the first failure), then API tool
// calls, recorded as a ToolCall block and executed as a pipeline. Returns
// whether any tools ran (meaning the loop should re-enter the stream step).
func (r *Runner) handleEndOfStream(ctx context.Context, resp *llmclient.Response) (bool, error) {
	text := resp.Message.ContentString()
	inlineSeq := 0
	inlineCalls := parseInlineCalls(text)

	if len(inlineCalls) > 0 {
		entries := toInlineToolCallEntries(inlineCalls, &inlineSeq)
		cleanText := stripInlineCalls(text, inlineCalls)
		r.manager.AppendToolCall(entries, cleanText)

		outcome := r.runToolPipeline(ctx, entries)
		r.mergeOutcome(outcome)
		if outcome.truncatedAtIndex >= 0 {
			r.filterAndReconcile(outcome)
			return true, nil
		}
		r.filterAndReconcile(outcome)

		if len(resp.Message.ToolCalls) == 0 {
			return true, nil
		}
	}

	if len(resp.Message.ToolCalls) == 0 {
		if strings.TrimSpace(text) != "" {
			r.manager.AppendAssistantMessage(text)
		}
		return false, nil
	}

	entries := toBlockToolCalls(resp.Message.ToolCalls)
	r.manager.AppendToolCall(entries, text)

	outcome := r.runToolPipeline(ctx, entries)
	r.mergeOutcome(outcome)
	r.filterAndReconcile(outcome)
	return true, nil
}

func (r *Runner) mergeOutcome(outcome pipelineOutcome) {
	for id := range outcome.executed {
		r.executedIDs[id] = true
	}
	if outcome.midTurnCommit {
		r.midTurnCommitFlag = true
	}
}

// filterAndReconcile trims unattempted calls from the most recent ToolCall
// block and applies files_modified/new_files_created side effects — the
// post-tools reconciliation step, deferred until after every ToolResult in
// the batch is recorded to preserve tool-use/tool-result adjacency.
func (r *Runner) filterAndReconcile(outcome pipelineOutcome) {
	r.manager.FilterToolCalls(r.executedIDs)

	for _, path := range dedupe(outcome.modifiedFiles) {
		data, err := r.overlay.Read(path)
		if err != nil {
			continue
		}
		r.manager.AppendFileContent(path, string(data), "")
	}

	if len(outcome.newFiles) > 0 {
		r.generateSummaries(context.Background())
	}
}

// generateSummaries re-runs the summary engine (cache-backed, so already
// summarized files are cheap) and replaces the live Summaries block.
func (r *Runner) generateSummaries(ctx context.Context) {
	if r.summarizer == nil {
		return
	}
	engine := summary.New(r.overlay, r.tok, r.summaryCache, r.matcher, r.summarizer, summary.Config{
		Parallelism: r.parallelism,
		TokenBudget: r.tokenBudget,
	})
	results, err := engine.Run(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("summary engine run failed")
		return
	}

	var b strings.Builder
	fileSizes := make(map[string]int, len(results))
	var beyondBudget []string
	for _, res := range results {
		fileSizes[res.Path] = res.EstimateTokens
		if res.BeyondBudget {
			beyondBudget = append(beyondBudget, res.Path)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", res.Path, res.Summary)
	}
	r.manager.SetSummaries(b.String(), fileSizes, beyondBudget)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// handleCancel implements spec §4.7's Cancellation rule: drop pending
// overlay changes, remove any incomplete trailing assistant block, and
// return to Idle with no commit.
func (r *Runner) handleCancel() {
	r.overlay.ClaimThread(r.tok)
	r.overlay.DiscardPending(r.tok)
	r.overlay.ReleaseThread(r.tok)
	r.manager.RemoveIncompleteTrailing()
	r.cancel.Store(false)
	r.state = Idle
}

// endOfTurnCommit implements step 5: write the session record, classify
// the commit type, generate a message via the cheap model if none was
// supplied, and commit through the overlay.
func (r *Runner) endOfTurnCommit(ctx context.Context) error {
	r.overlay.ClaimThread(r.tok)
	defer r.overlay.ReleaseThread(r.tok)

	if err := session.Save(r.overlay, r.tok, r.rec); err != nil {
		return fmt.Errorf("runner: save session record: %w", err)
	}

	changed := r.overlay.PendingPaths(r.tok)
	onlySession := len(changed) == 1 && changed[0] == session.RecordPath

	var commitType gitstore.Type
	switch {
	case onlySession && r.midTurnCommitFlag:
		commitType = gitstore.FollowUp
	case onlySession:
		commitType = gitstore.Prepare
	default:
		commitType = gitstore.Major
	}

	message, err := r.generateCommitMessage(ctx, changed, commitType)
	if err != nil {
		return fmt.Errorf("runner: generate commit message: %w", err)
	}

	now := time.Now()
	author := gitstore.Signature{Name: r.authorName, Email: r.authorEmail, When: now}

	_, err = r.overlay.Commit(r.tok, vfs.CommitOptions{
		Type:      commitType,
		Message:   message,
		Author:    author,
		Committer: author,
	})
	if err != nil {
		return fmt.Errorf("runner: commit: %w", err)
	}

	r.state = Idle
	return nil
}

// generateCommitMessage asks the cheap model for a subject line, passing
// the last user message and the changed-file list (excluding the session
// file) as context.
func (r *Runner) generateCommitMessage(ctx context.Context, changed []string, t gitstore.Type) (string, error) {
	var nonSession []string
	for _, p := range changed {
		if p != session.RecordPath {
			nonSession = append(nonSession, p)
		}
	}
	if len(nonSession) == 0 {
		return "update session state", nil
	}

	prompt := fmt.Sprintf("Write a one-line git commit subject (no prefix, imperative mood) summarizing these changed files: %s",
		strings.Join(nonSession, ", "))
	resp, err := r.commitModel.SendMessage(ctx, []llmclient.Message{llmclient.TextMessage("user", prompt)}, nil)
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(resp.Message.ContentString())
	if subject == "" {
		subject = fmt.Sprintf("update %d file(s)", len(nonSession))
	}
	return subject, nil
}
