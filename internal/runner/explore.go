package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/forgehq/forge/internal/llmclient"
	"github.com/forgehq/forge/internal/tools"
)

// MaxExploreIterations bounds the scout sub-agent's tool-call round trips.
const MaxExploreIterations = 30

// runExplore spawns a read-only scout sub-agent to research the overlay.
// It uses non-streaming SendMessage, since the scout's output is a single
// returned summary rather than something displayed incrementally.
func (r *Runner) runExplore(ctx context.Context, task string) (string, error) {
	roRegistry := tools.NewReadOnlyRegistry()
	toolDefs := roRegistry.Definitions()

	messages := []llmclient.Message{
		llmclient.TextMessage("system", exploreSystemPrompt()),
		llmclient.TextMessage("user", task),
	}

	totalSteps := 0

	for iteration := 0; iteration < MaxExploreIterations; iteration++ {
		if r.cancelled() {
			return "", context.Canceled
		}
		resp, err := r.client.SendMessage(ctx, messages, toolDefs)
		if err != nil {
			return "", fmt.Errorf("runner: explore sub-agent LLM error: %w", err)
		}

		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			r.log.Debug().Int("tool_calls", totalSteps).Msg("explore sub-agent complete")
			return resp.Message.ContentString(), nil
		}

		totalSteps += len(resp.Message.ToolCalls)

		outputs := make([]string, len(resp.Message.ToolCalls))
		var wg sync.WaitGroup
		for i, tc := range resp.Message.ToolCalls {
			wg.Add(1)
			go func(idx int, tc llmclient.ToolCall) {
				defer wg.Done()
				input := json.RawMessage(tc.Function.Arguments)
				result, toolErr := roRegistry.Execute(ctx, r.overlay, r.tok, tc.Function.Name, input)
				if toolErr != nil {
					outputs[idx] = fmt.Sprintf("Error: %s", toolErr)
					return
				}
				if !result.Success {
					outputs[idx] = fmt.Sprintf("Error: %s", result.Error)
					return
				}
				outputs[idx] = result.Message
			}(i, tc)
		}
		wg.Wait()

		for i, tc := range resp.Message.ToolCalls {
			messages = append(messages, llmclient.ToolResultMessage(tc.ID, outputs[i]))
		}
	}

	r.log.Warn().Int("tool_calls", totalSteps).Msg("explore sub-agent reached max iterations")
	return "Explore sub-agent reached maximum iterations without completing.", nil
}

func exploreSystemPrompt() string {
	return `You are an exploration sub-agent. Your job is to thoroughly research the repository to answer the given question.

This is a READ-ONLY exploration task. You only have access to: glob, grep, ls, read.

Guidelines:
- Use glob for broad file pattern matching (prefer over repeated ls calls)
- Use grep for searching file contents with regex
- Use read when you know the specific file path
- Use ls only when you need to see directory structure

You are meant to be a fast agent. To achieve this:
- Make efficient use of your tools — be smart about how you search
- Wherever possible, call multiple tools in parallel. When you find several files to read, read them ALL in one response instead of one at a time
- Start broad (glob, grep) then narrow down to specific reads

When you have gathered enough information, provide a clear, structured summary of your findings. Do not ask follow-up questions — just research and report.`
}
