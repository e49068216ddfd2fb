package runner

import (
	"strings"

	"github.com/forgehq/forge/internal/blocks"
	"github.com/forgehq/forge/internal/llmclient"
)

// toLLMMessages flattens PromptManager's materialized API messages into the
// transport layer's wire shape. Parts carry a CacheControl hint computed by
// blocks.ToMessages, but the chat-completions wire format this gateway
// speaks has no explicit cache-control block (unlike Anthropic's content
// array) — providers behind it cache automatically off identical prefix
// tokens, so the hint only matters for how ToMessages orders and groups
// blocks, not for anything transmitted on the wire.
func toLLMMessages(apiMsgs []blocks.APIMessage) []llmclient.Message {
	out := make([]llmclient.Message, 0, len(apiMsgs))
	for _, m := range apiMsgs {
		text := joinParts(m.Parts)
		switch m.Role {
		case "tool":
			out = append(out, llmclient.ToolResultMessage(m.ToolCallID, text))
		case "assistant":
			if len(m.ToolCalls) > 0 {
				var contentPtr *string
				if text != "" {
					contentPtr = &text
				}
				out = append(out, llmclient.AssistantMessage(contentPtr, toLLMToolCalls(m.ToolCalls)))
			} else {
				out = append(out, llmclient.TextMessage("assistant", text))
			}
		default:
			out = append(out, llmclient.TextMessage(m.Role, text))
		}
	}
	return out
}

func joinParts(parts []blocks.ContentPart) string {
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

func toLLMToolCalls(entries []blocks.ToolCallEntry) []llmclient.ToolCall {
	out := make([]llmclient.ToolCall, len(entries))
	for i, e := range entries {
		out[i] = llmclient.ToolCall{
			ID:   e.ID,
			Type: "function",
			Function: llmclient.FunctionCall{
				Name:      e.Name,
				Arguments: e.ArgumentsJSON,
			},
		}
	}
	return out
}

// toBlockToolCalls converts an accumulated model response's tool calls into
// the shape blocks.Manager.AppendToolCall stores.
func toBlockToolCalls(calls []llmclient.ToolCall) []blocks.ToolCallEntry {
	out := make([]blocks.ToolCallEntry, len(calls))
	for i, c := range calls {
		out[i] = blocks.ToolCallEntry{
			ID:            c.ID,
			Name:          c.Function.Name,
			ArgumentsJSON: c.Function.Arguments,
		}
	}
	return out
}
