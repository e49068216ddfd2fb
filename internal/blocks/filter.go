package blocks

// FilterToolCalls operates on the most recent non-deleted ToolCall block
// only, retaining entries whose id is in executedIDs. If the retained set
// is empty, the block is tombstoned entirely. Used after a sequential tool
// pipeline aborts early, so that unattempted calls don't leave a
// tool_use/tool_result mismatch for the next model call.
func (m *Manager) FilterToolCalls(executedIDs map[string]bool) {
	idx := -1
	for i := len(m.stream) - 1; i >= 0; i-- {
		if m.stream[i].Kind == KindToolCall && !m.stream[i].Deleted {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	kept := m.stream[idx].ToolCalls[:0:0]
	for _, tc := range m.stream[idx].ToolCalls {
		if executedIDs[tc.ID] {
			kept = append(kept, tc)
		}
	}
	if len(kept) == 0 {
		m.stream[idx].Deleted = true
		return
	}
	m.stream[idx].ToolCalls = kept
}
