package blocks

import "fmt"

// Manager owns the ordered block stream for one session/branch. It is not
// safe for concurrent use from multiple goroutines; callers serialize
// through the coordinator the way SessionRunner does (see internal/runner).
type Manager struct {
	stream            []Block
	nextUserID        int
	userIDToTC        map[int]string // user_id -> tool_call_id, bijective
	renderedEphemeral map[int]bool   // user_id -> already shown in full once
}

// New returns a Manager seeded with the static system prompt as its first
// block, satisfying the invariant that the first non-deleted block is
// always System.
func New(systemPrompt string) *Manager {
	m := &Manager{
		nextUserID:        1,
		userIDToTC:        make(map[int]string),
		renderedEphemeral: make(map[int]bool),
	}
	m.stream = append(m.stream, Block{Kind: KindSystem, Content: systemPrompt})
	return m
}

// Blocks returns a read-only snapshot of the full stream, tombstones
// included. Callers must not mutate the returned slice.
func (m *Manager) Blocks() []Block {
	return m.stream
}

// Live returns the indices of non-deleted blocks, in order.
func (m *Manager) live() []int {
	idxs := make([]int, 0, len(m.stream))
	for i, b := range m.stream {
		if !b.Deleted {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func (m *Manager) append(b Block) int {
	m.stream = append(m.stream, b)
	return len(m.stream) - 1
}

// AppendUserMessage appends a UserMessage block.
func (m *Manager) AppendUserMessage(text string) {
	m.append(Block{Kind: KindUserMessage, Content: text})
}

// AppendAssistantMessage appends an AssistantMessage block (no tool calls).
func (m *Manager) AppendAssistantMessage(text string) {
	m.append(Block{Kind: KindAssistantMessage, Content: text})
}

// AppendToolCall appends a ToolCall block carrying the accompanying
// assistant text (possibly empty) and the set of tool calls the model
// requested.
func (m *Manager) AppendToolCall(calls []ToolCallEntry, content string) {
	m.append(Block{Kind: KindToolCall, Content: content, ToolCalls: append([]ToolCallEntry(nil), calls...)})
}

// AppendToolResult appends a ToolResult block, assigning the next
// monotonically increasing user_id and recording the user_id -> tool_call_id
// bijection. Returns the assigned user_id.
func (m *Manager) AppendToolResult(toolCallID, content string, ephemeral bool) (int, error) {
	if toolCallID == "" {
		return 0, fmt.Errorf("blocks: tool_call_id must not be empty")
	}
	uid := m.nextUserID
	m.nextUserID++
	m.userIDToTC[uid] = toolCallID
	m.append(Block{
		Kind:       KindToolResult,
		Content:    content,
		ToolCallID: toolCallID,
		UserID:     uid,
		Ephemeral:  ephemeral,
	})
	return uid, nil
}

// SetSummaries tombstones any existing live Summaries block and appends a
// new one, preserving the invariant that at most one is live at a time.
func (m *Manager) SetSummaries(summaries string, fileSizes map[string]int, beyondBudget []string) {
	for i, b := range m.stream {
		if b.Kind == KindSummaries && !b.Deleted {
			m.stream[i].Deleted = true
		}
	}
	m.append(Block{
		Kind:              KindSummaries,
		Content:           summaries,
		FileSizes:         fileSizes,
		FilesBeyondBudget: beyondBudget,
	})
}

// RemoveFileContent tombstones the live FileContent block for filepath, if
// any.
func (m *Manager) RemoveFileContent(filepath string) {
	for i, b := range m.stream {
		if b.Kind == KindFileContent && !b.Deleted && b.Filepath == filepath {
			m.stream[i].Deleted = true
			return
		}
	}
}

// ClearConversation physically drops every block except System, Summaries,
// and FileContent (tombstoned or not). Physical identity of the retained
// blocks is preserved; everything else is gone for good.
func (m *Manager) ClearConversation() {
	kept := m.stream[:0:0]
	for _, b := range m.stream {
		switch b.Kind {
		case KindSystem, KindSummaries, KindFileContent:
			kept = append(kept, b)
		}
	}
	m.stream = kept
	m.nextUserID = 1
	m.userIDToTC = make(map[int]string)
	m.renderedEphemeral = make(map[int]bool)
}

// RemoveIncompleteTrailing tombstones a trailing live ToolCall block whose
// tool calls don't all have a matching ToolResult yet, and a trailing live
// AssistantMessage block with no following blocks. Used by cancellation
// (spec §4.7) to drop a turn's in-progress work without leaving a
// tool-call/tool-result mismatch for the next model call.
func (m *Manager) RemoveIncompleteTrailing() {
	live := m.live()
	if len(live) == 0 {
		return
	}
	lastIdx := live[len(live)-1]
	last := m.stream[lastIdx]

	switch last.Kind {
	case KindAssistantMessage:
		m.stream[lastIdx].Deleted = true
	case KindToolCall:
		resulted := make(map[string]bool)
		for i := lastIdx + 1; i < len(m.stream); i++ {
			b := m.stream[i]
			if b.Kind == KindToolResult && !b.Deleted {
				resulted[b.ToolCallID] = true
			}
		}
		for _, tc := range last.ToolCalls {
			if !resulted[tc.ID] {
				m.stream[lastIdx].Deleted = true
				break
			}
		}
	}
}

// ToolCallIDForUserID resolves the short integer alias back to the
// provider tool_call_id.
func (m *Manager) ToolCallIDForUserID(uid int) (string, bool) {
	id, ok := m.userIDToTC[uid]
	return id, ok
}
