package tools

import "fmt"

// SideEffect names one of the side-effect kinds a tool result can declare.
type SideEffect string

const (
	SideEffectFilesModified    SideEffect = "files_modified"
	SideEffectNewFilesCreated  SideEffect = "new_files_created"
	SideEffectMidTurnCommit    SideEffect = "mid_turn_commit"
	SideEffectHasDisplayOutput SideEffect = "has_display_output"
	SideEffectEphemeralResult  SideEffect = "ephemeral_result"
)

// Result is the envelope every tool invocation resolves to: a success flag,
// an optional error and display message, and the set of side effects the
// runner must reconcile (modified/new files, mid-turn commits, ephemeral
// results that should render as a placeholder on the next to_messages pass).
type Result struct {
	Success       bool
	Error         string
	Message       string
	SideEffects   map[SideEffect]bool
	ModifiedFiles []string
	NewFiles      []string
}

func (r Result) hasSideEffect(e SideEffect) bool {
	return r.SideEffects != nil && r.SideEffects[e]
}

func withSideEffect(r Result, e SideEffect) Result {
	if r.SideEffects == nil {
		r.SideEffects = make(map[SideEffect]bool)
	}
	r.SideEffects[e] = true
	return r
}

func errResult(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

func okResult(message string) Result {
	return Result{Success: true, Message: message}
}

// NeedsConfirmation is returned by mutating tools before they are allowed to
// execute. The caller (the runner) is responsible for surfacing Preview and
// NewContent to the user and invoking Execute only once approved.
type NeedsConfirmation struct {
	Tool       string
	Path       string
	Preview    string // shown before approval: a unified diff (write, edit, undo_edit), the command (bash), or the task list (write_tasks)
	NewContent string // new content, for diff display
	Execute    func() (Result, error)
}

func (e *NeedsConfirmation) Error() string {
	return fmt.Sprintf("%s requires confirmation for %s", e.Tool, e.Path)
}
