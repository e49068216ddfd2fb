package blocks

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// compactTruncateLimit bounds the length of non-ToolResult text rewritten
// by a range compaction.
const compactTruncateLimit = 200

const compactedArgsJSON = `{"_compacted": true}`

// CompactMessages rewrites every block in the closed index range spanning
// the ToolResult with user_id == from through the ToolResult with
// user_id == to. Returns the number of ToolResult blocks rewritten.
func (m *Manager) CompactMessages(fromID, toID, summary string) (int, error) {
	from, err := strconv.Atoi(fromID)
	if err != nil {
		return 0, fmt.Errorf("blocks: invalid from id %q: %w", fromID, err)
	}
	to, err := strconv.Atoi(toID)
	if err != nil {
		return 0, fmt.Errorf("blocks: invalid to id %q: %w", toID, err)
	}
	if from > to {
		return 0, fmt.Errorf("blocks: from (%d) must be <= to (%d)", from, to)
	}

	startIdx, endIdx := -1, -1
	for i, b := range m.stream {
		if b.Kind != KindToolResult || b.Deleted {
			continue
		}
		if b.UserID == from {
			startIdx = i
		}
		if b.UserID == to {
			endIdx = i
		}
	}
	if startIdx == -1 {
		return 0, fmt.Errorf("blocks: no tool result with user_id %d", from)
	}
	if endIdx == -1 {
		return 0, fmt.Errorf("blocks: no tool result with user_id %d", to)
	}
	if endIdx < startIdx {
		return 0, fmt.Errorf("blocks: user_id %d occurs after user_id %d", from, to)
	}

	compactedCount := 0
	firstResultSeen := false
	for i := startIdx; i <= endIdx; i++ {
		b := &m.stream[i]
		switch b.Kind {
		case KindToolResult:
			if !firstResultSeen {
				b.Content = "[COMPACTED] " + summary
				firstResultSeen = true
			} else {
				b.Content = "[COMPACTED - see above]"
			}
			compactedCount++
		case KindToolCall:
			for j := range b.ToolCalls {
				b.ToolCalls[j].ArgumentsJSON = compactedArgsJSON
			}
			b.Content = truncateWithEllipsis(b.Content, compactTruncateLimit)
		case KindAssistantMessage:
			b.Content = truncateWithEllipsis(b.Content, compactTruncateLimit)
		}
	}

	return compactedCount, nil
}

func truncateWithEllipsis(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// CompactThinkCall strips the scratchpad argument from the think tool call
// with the given id, keeping its conclusion (which lives in the matching
// ToolResult, untouched here).
func (m *Manager) CompactThinkCall(callID string) error {
	for i := range m.stream {
		b := &m.stream[i]
		if b.Kind != KindToolCall || b.Deleted {
			continue
		}
		for j := range b.ToolCalls {
			tc := &b.ToolCalls[j]
			if tc.ID != callID {
				continue
			}
			var args map[string]json.RawMessage
			if err := json.Unmarshal([]byte(tc.ArgumentsJSON), &args); err != nil {
				return fmt.Errorf("blocks: parse think arguments: %w", err)
			}
			delete(args, "scratchpad")
			out, err := json.Marshal(args)
			if err != nil {
				return fmt.Errorf("blocks: marshal think arguments: %w", err)
			}
			tc.ArgumentsJSON = string(out)
			return nil
		}
	}
	return fmt.Errorf("blocks: no tool call with id %q", callID)
}
