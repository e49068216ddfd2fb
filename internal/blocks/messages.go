package blocks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentPart is one piece of text content within an APIMessage, optionally
// carrying a provider cache marker.
type ContentPart struct {
	Text         string
	CacheControl bool
}

// APIMessage is one materialized message in the outgoing provider payload.
type APIMessage struct {
	Role       string // "system", "user", "assistant", "tool"
	Parts      []ContentPart
	ToolCalls  []ToolCallEntry // assistant messages with tool calls
	ToolCallID string          // tool messages
}

const ephemeralPlaceholder = "[ephemeral result omitted]"

// groupable reports whether a block kind participates in the
// Summaries/FileContent/UserMessage merge-into-one-user-message rule.
func groupable(k Kind) bool {
	return k == KindSummaries || k == KindFileContent || k == KindUserMessage
}

// ToMessages materializes the block stream into an ordered list of API
// messages. Ephemeral tool results are shown in full the first time they're
// materialized for a given Manager and replaced by a placeholder after that,
// so repeated turns don't keep re-paying for large raw tool output.
func (m *Manager) ToMessages(recapLastN int) []APIMessage {
	liveIdx := m.live()
	if len(liveIdx) == 0 {
		return nil
	}

	// Cache anchor: the last live block that is not ToolCall.
	anchor := -1
	for i := len(liveIdx) - 1; i >= 0; i-- {
		if m.stream[liveIdx[i]].Kind != KindToolCall {
			anchor = liveIdx[i]
			break
		}
	}

	var out []APIMessage

	flushGroup := func(parts []ContentPart) {
		if len(parts) == 0 {
			return
		}
		out = append(out, APIMessage{Role: "user", Parts: parts})
	}

	var pendingGroup []ContentPart
	i := 0
	for i < len(liveIdx) {
		idx := liveIdx[i]
		b := m.stream[idx]

		if groupable(b.Kind) {
			pendingGroup = append(pendingGroup, ContentPart{
				Text:         b.Content,
				CacheControl: idx == anchor,
			})
			i++
			continue
		}

		// Flush any pending group before emitting a non-groupable message.
		flushGroup(pendingGroup)
		pendingGroup = nil

		switch b.Kind {
		case KindSystem:
			out = append(out, APIMessage{
				Role:  "system",
				Parts: []ContentPart{{Text: b.Content, CacheControl: idx == anchor}},
			})
		case KindAssistantMessage:
			out = append(out, APIMessage{
				Role:  "assistant",
				Parts: []ContentPart{{Text: b.Content}},
			})
		case KindToolCall:
			calls := append([]ToolCallEntry(nil), b.ToolCalls...)
			for j, tc := range calls {
				if tc.Name == "think" {
					calls[j].ArgumentsJSON = stripScratchpad(tc.ArgumentsJSON)
				}
			}
			out = append(out, APIMessage{
				Role:      "assistant",
				Parts:     []ContentPart{{Text: b.Content}},
				ToolCalls: calls,
			})
		case KindToolResult:
			content := b.Content
			if b.Ephemeral {
				if m.renderedEphemeral[b.UserID] {
					content = ephemeralPlaceholder
				} else {
					m.renderedEphemeral[b.UserID] = true
				}
			}
			text := fmt.Sprintf("[tool_call_id: %d]\n%s", b.UserID, content)
			out = append(out, APIMessage{
				Role:       "tool",
				Parts:      []ContentPart{{Text: text}},
				ToolCallID: b.ToolCallID,
			})
		}
		i++
	}
	flushGroup(pendingGroup)

	recap, stats := m.buildRecapAndStats(recapLastN)
	recapParts := []ContentPart{{Text: recap}, {Text: stats}}
	if len(out) > 0 && out[len(out)-1].Role == "user" {
		out[len(out)-1].Parts = append(out[len(out)-1].Parts, recapParts...)
	} else {
		out = append(out, APIMessage{Role: "user", Parts: recapParts})
	}

	return out
}

func stripScratchpad(argsJSON string) string {
	var args map[string]json.RawMessage
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return argsJSON
	}
	delete(args, "scratchpad")
	out, err := json.Marshal(args)
	if err != nil {
		return argsJSON
	}
	return string(out)
}

// EstimateTokens is the deliberately coarse len(utf8_bytes)/3 heuristic.
func EstimateTokens(s string) int {
	return len(s) / 3
}

// ContextStats reports estimated token usage per bucket plus a qualitative
// size label. Bucket sums are consistent: Total == System + Summaries +
// Files + Conversation.
type ContextStats struct {
	System         int
	Summaries      int
	Files          int
	Conversation   int
	Recap          int
	Total          int
	FileCount      int
	SessionCostUSD float64
	Label          string
}

func sizeLabel(total int) string {
	switch {
	case total < 20000:
		return "small"
	case total < 60000:
		return "moderate"
	case total < 120000:
		return "large"
	case total < 250000:
		return "very large"
	default:
		return "extremely large"
	}
}

// Stats computes ContextStats over the live block stream.
func (m *Manager) Stats(sessionCostUSD float64) ContextStats {
	var s ContextStats
	s.SessionCostUSD = sessionCostUSD
	for _, idx := range m.live() {
		b := m.stream[idx]
		switch b.Kind {
		case KindSystem:
			s.System += EstimateTokens(b.Content)
		case KindSummaries:
			s.Summaries += EstimateTokens(b.Content)
		case KindFileContent:
			s.Files += EstimateTokens(b.Content)
			s.FileCount++
		case KindUserMessage, KindAssistantMessage, KindToolCall, KindToolResult:
			s.Conversation += EstimateTokens(b.Content)
			for _, tc := range b.ToolCalls {
				s.Conversation += EstimateTokens(tc.ArgumentsJSON)
			}
		}
	}
	s.Total = s.System + s.Summaries + s.Files + s.Conversation
	s.Label = sizeLabel(s.Total)
	return s
}

// buildRecapAndStats builds the trailing recap and stats text blocks.
func (m *Manager) buildRecapAndStats(lastN int) (recap, stats string) {
	live := m.live()

	lastUserAt := -1
	for i := len(live) - 1; i >= 0; i-- {
		if m.stream[live[i]].Kind == KindUserMessage {
			lastUserAt = i
			break
		}
	}

	start := 0
	if lastUserAt >= 0 {
		start = lastUserAt
	}
	if n := len(live) - lastN; lastUserAt < 0 || n < start {
		if n < 0 {
			n = 0
		}
		if n < start {
			start = n
		}
	}

	var sb strings.Builder
	sb.WriteString("## Conversation recap\n")
	for i := start; i < len(live); i++ {
		b := m.stream[live[i]]
		switch b.Kind {
		case KindUserMessage:
			fmt.Fprintf(&sb, "User: %s\n", b.Content)
		case KindAssistantMessage:
			fmt.Fprintf(&sb, "Assistant: %s\n", truncateWithEllipsis(b.Content, compactTruncateLimit))
		case KindToolCall:
			for _, tc := range b.ToolCalls {
				fmt.Fprintf(&sb, "Tool call: %s\n", summarizeCall(tc))
			}
		case KindToolResult:
			fmt.Fprintf(&sb, "Result [%d]: %s\n", b.UserID, resultStatusLine(b))
		}
	}

	statsData := m.Stats(0)
	var stb strings.Builder
	fmt.Fprintf(&stb, "## Context stats\n")
	fmt.Fprintf(&stb, "system=%d summaries=%d files=%d conversation=%d recap=%d total=%d files_loaded=%d size=%s",
		statsData.System, statsData.Summaries, statsData.Files, statsData.Conversation,
		EstimateTokens(sb.String()), statsData.Total, statsData.FileCount, statsData.Label)

	return sb.String(), stb.String()
}

func summarizeCall(tc ToolCallEntry) string {
	key, val := firstArgKV(tc.ArgumentsJSON)
	if key == "" {
		return tc.Name + "()"
	}
	return fmt.Sprintf("%s(%s=%s)", tc.Name, key, val)
}

func firstArgKV(argsJSON string) (string, string) {
	var args map[string]json.RawMessage
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || len(args) == 0 {
		return "", ""
	}
	// Alphabetically first key, so the choice is deterministic regardless
	// of map iteration order.
	best := ""
	for k := range args {
		if best == "" || k < best {
			best = k
		}
	}
	raw := string(args[best])
	raw = strings.Trim(raw, `"`)
	if len(raw) > 40 {
		raw = raw[:40] + "..."
	}
	return best, raw
}

func resultStatusLine(b Block) string {
	if strings.HasPrefix(b.Content, "[COMPACTED") {
		return "[compacted]"
	}
	if strings.HasPrefix(b.Content, "Error:") {
		return "✗"
	}
	return "✓"
}
