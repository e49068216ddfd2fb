// Package tools implements the built-in tool set and the approval-gated
// user-tool registry operating against an internal/vfs overlay, rather than
// the raw filesystem the teacher's tools package used.
package tools

import (
	"context"
	"encoding/json"

	"github.com/forgehq/forge/internal/vfs"
)

// ToolDef mirrors the shape the LLM transport layer expects for
// function-calling tool declarations (name, description, JSON-schema
// parameters). Defined here rather than in internal/llmclient because the
// registry, not the transport layer, owns each tool's schema.
type ToolDef struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a tool's callable signature.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// InvocationMode distinguishes function-calling tools from tools only
// reachable via inline tagged syntax in assistant text (spec §4.4, §6).
type InvocationMode string

const (
	ModeAPI    InvocationMode = "api"
	ModeInline InvocationMode = "inline"
)

// ToolFunc is the signature every built-in tool implements. tok is the
// caller's overlay ownership token; fs is the caller's overlay for every
// tool, including those that never touch the repository and ignore it
// (the signature is uniform so the pipeline never special-cases a tool
// by name).
type ToolFunc func(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error)

type toolEntry struct {
	name     string
	fn       ToolFunc
	def      ToolDef
	mode     InvocationMode
	readOnly bool
}

// Registry holds the built-in tools and dispatches execution by name.
type Registry struct {
	tools         []toolEntry
	exploreFunc   ExploreFunc
	taskCallbacks TaskCallbacks
}

// NewRegistry creates a registry with every built-in tool registered.
func NewRegistry() *Registry {
	r := &Registry{}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(name, description string, schema json.RawMessage, mode InvocationMode, readOnly bool, fn ToolFunc) {
	r.tools = append(r.tools, toolEntry{
		name:     name,
		fn:       fn,
		mode:     mode,
		readOnly: readOnly,
		def: ToolDef{
			Type: "function",
			Function: FunctionDef{
				Name:        name,
				Description: description,
				Parameters:  schema,
			},
		},
	})
}

func (r *Registry) find(name string) (toolEntry, bool) {
	for _, t := range r.tools {
		if t.name == name {
			return t, true
		}
	}
	return toolEntry{}, false
}

// Execute runs a built-in tool by name. Unknown tool names are a Result
// failure, not a Go error: an unknown tool name is something the model did,
// not an invocation-layer fault.
func (r *Registry) Execute(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, name string, input json.RawMessage) (Result, error) {
	entry, ok := r.find(name)
	if !ok {
		return errResult("unknown tool: %s", name), nil
	}
	return entry.fn(ctx, fs, tok, RepairArguments(input))
}

// IsReadOnly reports whether a built-in never mutates the overlay.
func (r *Registry) IsReadOnly(name string) bool {
	entry, ok := r.find(name)
	return ok && entry.readOnly
}

// InvocationMode reports how a tool is invoked, for splitting the built-in
// set between function-calling declarations and inline-syntax dispatch.
func (r *Registry) InvocationMode(name string) (InvocationMode, bool) {
	entry, ok := r.find(name)
	if !ok {
		return "", false
	}
	return entry.mode, true
}

// Definitions returns the function-calling tool declarations, in stable
// registration order, for tools whose invocation mode is ModeAPI.
func (r *Registry) Definitions() []ToolDef {
	var defs []ToolDef
	for _, t := range r.tools {
		if t.mode == ModeAPI {
			defs = append(defs, t.def)
		}
	}
	return defs
}

func (r *Registry) registerBuiltins() {
	r.registerReadOnlyTools()
	r.registerTaskTools()

	r.register("write",
		`Create or overwrite a file with the given content. User confirmation required. ALWAYS prefer editing existing files over writing new ones — use the edit tool to modify existing files. Never proactively create documentation files (*.md) or README files unless explicitly requested.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path to write"},
				"content": {"type": "string", "description": "Content to write to the file"}
			},
			"required": ["path", "content"]
		}`),
		ModeAPI, false,
		r.writeTool,
	)

	r.register("edit",
		`Edit a file by replacing an exact string match. old_str must appear exactly once in the file, whitespace and indentation included. If the edit fails because old_str is not unique, include more surrounding context to make it unique.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path to edit"},
				"old_str": {"type": "string", "description": "Exact string to find (must appear exactly once)"},
				"new_str": {"type": "string", "description": "Replacement string"}
			},
			"required": ["path", "old_str", "new_str"]
		}`),
		ModeAPI, false,
		r.editTool,
	)

	r.register("undo_edit",
		`Revert a file to its content in the base commit (the commit the current branch started from), discarding any pending edits to it this turn. Useful when an edit went wrong or you want to start over on a single file. User confirmation required.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path to revert"}
			},
			"required": ["path"]
		}`),
		ModeAPI, false,
		r.undoEditTool,
	)

	r.register("bash",
		`Execute a shell command against a snapshot of the current repository state. Use for terminal operations like builds, tests, and formatters. Do NOT use bash for file operations (reading, writing, editing, searching) — use the dedicated tools instead. All commands require user confirmation. Default timeout: 30s, max: 120s. Output is truncated at 10,000 characters. Files the command creates or modifies are reconciled back into the session automatically.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "Shell command to execute"},
				"timeout": {"type": "integer", "description": "Timeout in seconds (default: 30, max: 120)"}
			},
			"required": ["command"]
		}`),
		ModeAPI, false,
		r.bashTool,
	)

	r.register("scout",
		`Explore the codebase to answer broad questions by delegating to a focused read-only sub-agent. Use this for questions like "how does authentication work?" or "what's the project structure?" — not for direct edits or commands. Also the right tool for reading files the context summary marked beyond-budget.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"task": {"type": "string", "description": "What to explore or research in the codebase"}
			},
			"required": ["task"]
		}`),
		ModeAPI, true,
		r.scoutTool,
	)

	r.register("think",
		`Use this tool to reason through a difficult problem before acting, when you don't need to change the repository or call another tool. Write your reasoning in scratchpad; state the decision you reached in conclusion. The scratchpad is dropped from your context on later turns — only the conclusion persists.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"scratchpad": {"type": "string", "description": "Free-form reasoning, dropped from context after this turn"},
				"conclusion": {"type": "string", "description": "The decision or plan reached, kept in context"}
			},
			"required": ["conclusion"]
		}`),
		ModeAPI, true,
		r.thinkTool,
	)
}
