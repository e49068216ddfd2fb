package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/vfs"
)

// TaskInput is the per-task shape for write_tasks (no ID or timestamps —
// those are assigned by the session-scoped task list itself).
type TaskInput struct {
	Content     string `json:"content"`
	Description string `json:"description"`
	ActiveForm  string `json:"active_form"`
}

// TaskCallbacks breaks the tools -> session import cycle for task-list
// operations, the same pattern as ExploreFunc.
type TaskCallbacks struct {
	WriteTasks func(tasks []TaskInput) string
	UpdateTask func(id int, status string) error
	ReadTasks  func() string
}

// SetTaskCallbacks injects the task-list callbacks into the registry.
func (r *Registry) SetTaskCallbacks(cb TaskCallbacks) {
	r.taskCallbacks = cb
}

func (r *Registry) registerTaskTools() {
	r.register("write_tasks",
		`Create or replace the task list for planning multi-step work. User confirmation required.
Each task has:
- content: short imperative title (e.g. "Add auth middleware")
- description: detailed implementation plan with files to create/modify, code patterns to follow, and what "done" looks like
- active_form: (optional) continuous form for status display

After the user approves the plan, immediately mark task 1 as in_progress and begin implementation.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"tasks": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"content": {"type": "string", "description": "Short imperative title"},
							"description": {"type": "string", "description": "Detailed description: files to change, patterns to follow, acceptance criteria"},
							"active_form": {"type": "string", "description": "Task description in continuous form"}
						},
						"required": ["content", "description"]
					},
					"description": "Array of tasks to create"
				}
			},
			"required": ["tasks"]
		}`),
		ModeAPI, false,
		r.writeTasksTool,
	)

	r.register("update_task",
		`Update the status of a task by ID. Valid statuses: pending, in_progress, completed. Returns the updated task list.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "integer", "description": "Task ID to update"},
				"status": {"type": "string", "enum": ["pending", "in_progress", "completed"], "description": "New status for the task"}
			},
			"required": ["id", "status"]
		}`),
		ModeAPI, false,
		r.updateTaskTool,
	)

	r.register("read_tasks",
		`Read the current task list. write_tasks and update_task already return the current list, so this is mainly useful after many turns of work when context may have been compacted.`,
		json.RawMessage(`{"type": "object", "properties": {}}`),
		ModeAPI, true,
		r.readTasksTool,
	)
}

type writeTasksInput struct {
	Tasks []TaskInput `json:"tasks"`
}

func (r *Registry) writeTasksTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[writeTasksInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if len(params.Tasks) == 0 {
		return errResult("tasks array is required and must not be empty"), nil
	}
	for i, t := range params.Tasks {
		if t.Content == "" {
			return errResult("task %d: content is required", i+1), nil
		}
		if t.Description == "" {
			return errResult("task %d: description is required — include files to modify, implementation steps, and acceptance criteria", i+1), nil
		}
	}
	if r.taskCallbacks.WriteTasks == nil {
		return errResult("task callbacks not configured"), nil
	}

	return Result{}, &NeedsConfirmation{
		Tool:    "write_tasks",
		Path:    "task plan",
		Preview: formatTaskPreview(params.Tasks),
		Execute: func() (Result, error) {
			return okResult(r.taskCallbacks.WriteTasks(params.Tasks)), nil
		},
	}
}

func formatTaskPreview(tasks []TaskInput) string {
	var sb strings.Builder
	for i, t := range tasks {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, t.Content)
		if t.Description != "" {
			fmt.Fprintf(&sb, "     %s\n", t.Description)
		}
	}
	fmt.Fprintf(&sb, "\n%d tasks", len(tasks))
	return sb.String()
}

type updateTaskInput struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

func (r *Registry) updateTaskTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[updateTaskInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.ID == 0 {
		return errResult("id is required"), nil
	}
	if params.Status == "" {
		return errResult("status is required"), nil
	}
	if r.taskCallbacks.UpdateTask == nil {
		return errResult("task callbacks not configured"), nil
	}
	if err := r.taskCallbacks.UpdateTask(params.ID, params.Status); err != nil {
		return errResult("%s", err), nil
	}
	return okResult(r.taskCallbacks.ReadTasks()), nil
}

func (r *Registry) readTasksTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	if r.taskCallbacks.ReadTasks == nil {
		return errResult("task callbacks not configured"), nil
	}
	result := r.taskCallbacks.ReadTasks()
	return okResult(result + "\n\n(Note: update_task also returns the current list. You rarely need read_tasks.)"), nil
}
