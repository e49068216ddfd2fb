package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/vfs"
)

// maxConflictPathsShown bounds the conflict list in a refused-merge error
// message per spec §7's "first-5-plus-count" format.
const maxConflictPathsShown = 5

// ErrMergeConflict reports a refused three-way merge, carrying the full
// (deduplicated, sorted) list of conflicting paths for callers that want
// more than the truncated summary in Error().
type ErrMergeConflict struct {
	Branch string
	Paths  []string
}

func (e *ErrMergeConflict) Error() string {
	shown := e.Paths
	suffix := ""
	if len(shown) > maxConflictPathsShown {
		shown = shown[:maxConflictPathsShown]
		suffix = fmt.Sprintf(" (+%d more)", len(e.Paths)-maxConflictPathsShown)
	}
	return fmt.Sprintf("merge conflict on %s: %s%s", e.Branch, strings.Join(shown, ", "), suffix)
}

// Spawn creates a new branch off the current head and writes an initial
// session file there, recording the new branch as a child of this session.
func (r *Runner) Spawn(branchName string) error {
	head, err := r.store.BranchHead(r.branch)
	if err != nil {
		return fmt.Errorf("runner: spawn %s: %w", branchName, err)
	}
	if err := r.store.MoveRef(branchName, head.Hash); err != nil {
		return fmt.Errorf("runner: spawn %s: %w", branchName, err)
	}

	base, err := vfs.NewBaseVFS(r.store, head.Hash)
	if err != nil {
		return fmt.Errorf("runner: spawn %s: %w", branchName, err)
	}
	childOverlay := vfs.NewOverlayVFS(base, r.store, branchName)
	childTok := vfs.NewOwnerToken()
	childOverlay.ClaimThread(childTok)
	defer childOverlay.ReleaseThread(childTok)

	if err := session.Save(childOverlay, childTok, session.Record{ParentSession: r.branch}); err != nil {
		return fmt.Errorf("runner: spawn %s: %w", branchName, err)
	}
	now := time.Now()
	author := gitstore.Signature{Name: r.authorName, Email: r.authorEmail, When: now}
	if _, err := childOverlay.Commit(childTok, vfs.CommitOptions{
		Type:      gitstore.Prepare,
		Message:   fmt.Sprintf("spawn %s", branchName),
		Author:    author,
		Committer: author,
	}); err != nil {
		return fmt.Errorf("runner: spawn %s: %w", branchName, err)
	}

	r.rec.ChildSessions = append(r.rec.ChildSessions, branchName)
	return nil
}

// ChildState is the minimal state Wait needs to know about a child branch.
type ChildState struct {
	Branch string
	State  State
}

// Wait implements spec §4.7's wait(branches): returns immediately if any
// child is Completed or WaitingInput; otherwise the caller is responsible
// for transitioning to WaitingChildren, committing, and suspending — Wait
// itself only reports which case applies, since suspension is a state
// transition the turn loop (not this helper) owns.
func Wait(children []ChildState) (ready *ChildState, mustSuspend bool) {
	for i, c := range children {
		if c.State == Completed || c.State == WaitingInput {
			return &children[i], false
		}
	}
	return nil, true
}

// ResumeChild appends message as a user message into the child branch's
// session record and commits it as a Prepare, so the child's next turn
// picks it up as a queued mid-turn user message per spec §4.7 step 4.
func (r *Runner) ResumeChild(branch, message string) error {
	head, err := r.store.BranchHead(branch)
	if err != nil {
		return fmt.Errorf("runner: resume %s: %w", branch, err)
	}
	base, err := vfs.NewBaseVFS(r.store, head.Hash)
	if err != nil {
		return fmt.Errorf("runner: resume %s: %w", branch, err)
	}
	overlay := vfs.NewOverlayVFS(base, r.store, branch)
	tok := vfs.NewOwnerToken()
	overlay.ClaimThread(tok)
	defer overlay.ReleaseThread(tok)

	rec, err := session.Load(overlay)
	if err != nil {
		return fmt.Errorf("runner: resume %s: %w", branch, err)
	}
	rec.Messages = append(rec.Messages, session.Message{Role: "user", Content: message})
	if err := session.Save(overlay, tok, rec); err != nil {
		return fmt.Errorf("runner: resume %s: %w", branch, err)
	}

	now := time.Now()
	author := gitstore.Signature{Name: r.authorName, Email: r.authorEmail, When: now}
	_, err = overlay.Commit(tok, vfs.CommitOptions{
		Type:      gitstore.Prepare,
		Message:   "resume",
		Author:    author,
		Committer: author,
	})
	if err != nil && err != vfs.ErrNoChanges {
		return fmt.Errorf("runner: resume %s: %w", branch, err)
	}
	return nil
}

// MergeChild performs a three-way merge of branch into the current branch,
// excluding the session file from the merged tree, and emits a two-parent
// merge commit. A non-empty conflict list refuses the merge entirely: no
// commit is produced.
func (r *Runner) MergeChild(branch string) error {
	ours, err := r.store.BranchHead(r.branch)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}
	theirs, err := r.store.BranchHead(branch)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}
	ancestor, err := r.store.MergeBase(ours.Hash, theirs.Hash)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}

	oursCommit, err := r.store.Commit(ours.Hash)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}
	theirsCommit, err := r.store.Commit(theirs.Hash)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}
	ancestorCommit, err := r.store.Commit(ancestor)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}

	idx, conflicts, err := r.store.MergeTrees(ancestorCommit.TreeHash, oursCommit.TreeHash, theirsCommit.TreeHash)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}
	delete(idx, session.RecordPath)

	var realConflicts []string
	for _, p := range conflicts {
		if p == session.RecordPath {
			continue
		}
		realConflicts = append(realConflicts, p)
	}
	if len(realConflicts) > 0 {
		return &ErrMergeConflict{Branch: branch, Paths: realConflicts}
	}

	paths := make([]string, 0, len(idx))
	for p := range idx {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	inserts := make([]gitstore.Insert, 0, len(paths))
	for _, p := range paths {
		entry := idx[p]
		inserts = append(inserts, gitstore.Insert{Path: p, Oid: entry.Oid, Mode: entry.Mode})
	}

	mergedTree, err := r.store.BuildTree(plumbing.ZeroHash, inserts, nil)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}

	now := time.Now()
	author := gitstore.Signature{Name: r.authorName, Email: r.authorEmail, When: now}
	newHead, err := r.store.CreateCommit(
		[]plumbing.Hash{ours.Hash, theirs.Hash},
		mergedTree, fmt.Sprintf("merge %s", branch), author, author, r.branch)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}

	base, err := vfs.NewBaseVFS(r.store, newHead)
	if err != nil {
		return fmt.Errorf("runner: merge %s: %w", branch, err)
	}
	r.overlay = vfs.NewOverlayVFS(base, r.store, r.branch)
	return nil
}
