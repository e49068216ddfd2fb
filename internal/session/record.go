// Package session implements the session record persisted per branch in
// the overlay, the task list carried in that record's state blob, and the
// project-local caches (summaries, daily cost) that live outside git
// history because they are content-addressed rather than branch-scoped.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/forgehq/forge/internal/vfs"
)

// RecordPath is where the session record lives through the overlay on
// every branch.
const RecordPath = ".forge/session.json"

// Message is the minimal shape the session record persists for replay;
// the full typed block stream lives in internal/blocks and is rebuilt
// from these on resume.
type Message struct {
	Role      string          `json:"role"`
	Content   string          `json:"content,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// RequestLogEntry records one model request for the debug/cost trail.
type RequestLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model"`
	CostUSD   float64   `json:"cost_usd,omitempty"`
}

// Task is a tracked planning work item, created via the write_tasks tool.
type Task struct {
	ID         int       `json:"id"`
	Content    string    `json:"content"`
	Status     string    `json:"status"` // pending, in_progress, completed
	ActiveForm string    `json:"active_form,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// State is the session's opaque planning state: currently just the task
// list, kept as its own field (rather than folded into json.RawMessage)
// since it is the one piece of state the runner reads and writes on
// every turn.
type State struct {
	Tasks []Task `json:"tasks,omitempty"`
}

// Record is the per-branch session document written through the overlay
// as part of every turn commit.
type Record struct {
	Messages          []Message         `json:"messages"`
	ActiveFiles       []string          `json:"active_files,omitempty"`
	RequestLogEntries []RequestLogEntry `json:"request_log_entries,omitempty"`
	ParentSession     string            `json:"parent_session,omitempty"`
	ChildSessions     []string          `json:"child_sessions,omitempty"`
	State             State             `json:"state"`
	YieldMessage      string            `json:"yield_message,omitempty"`
}

// Load reads and parses the session record from the overlay. A missing
// record is not an error: every branch starts with an empty one.
func Load(fs *vfs.OverlayVFS) (Record, error) {
	data, err := fs.Read(RecordPath)
	if err != nil {
		return Record{}, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("session: parse %s: %w", RecordPath, err)
	}
	return rec, nil
}

// Save stages the record as a pending write through the overlay. The
// caller (SessionRunner) is responsible for committing it as part of the
// turn's end-of-turn commit.
func Save(fs *vfs.OverlayVFS, tok vfs.OwnerToken, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	fs.Write(tok, RecordPath, data)
	return nil
}

// WriteTasks replaces the task list, auto-assigning sequential IDs.
func (r *Record) WriteTasks(inputs []TaskInput) string {
	now := time.Now()
	r.State.Tasks = make([]Task, len(inputs))
	for i, in := range inputs {
		r.State.Tasks[i] = Task{
			ID:         i + 1,
			Content:    in.Content,
			Status:     "pending",
			ActiveForm: in.ActiveForm,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return r.TaskSummary()
}

// TaskInput is the shape the write_tasks tool supplies (no ID or
// timestamps — those are assigned here).
type TaskInput struct {
	Content     string
	Description string
	ActiveForm  string
}

// UpdateTask changes the status of a single task by ID.
func (r *Record) UpdateTask(id int, status string) error {
	switch status {
	case "pending", "in_progress", "completed":
	default:
		return fmt.Errorf("invalid status %q (must be pending, in_progress, or completed)", status)
	}
	for i := range r.State.Tasks {
		if r.State.Tasks[i].ID == id {
			r.State.Tasks[i].Status = status
			r.State.Tasks[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("task %d not found", id)
}

// TaskSummary renders the task list as the text the write_tasks/update_task
// tools return to the model.
func (r *Record) TaskSummary() string {
	if len(r.State.Tasks) == 0 {
		return "No tasks."
	}
	pending, inProgress, completed := 0, 0, 0
	var lines string
	for _, t := range r.State.Tasks {
		switch t.Status {
		case "pending":
			pending++
			lines += fmt.Sprintf("  [ ] %d. %s\n", t.ID, t.Content)
		case "in_progress":
			inProgress++
			lines += fmt.Sprintf("  [~] %d. %s\n", t.ID, t.Content)
		case "completed":
			completed++
			lines += fmt.Sprintf("  [x] %d. %s\n", t.ID, t.Content)
		}
	}
	return fmt.Sprintf("%s\n%d tasks (%d pending, %d in progress, %d completed)",
		lines, len(r.State.Tasks), pending, inProgress, completed)
}
