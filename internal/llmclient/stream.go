package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forgehq/forge/internal/tools"
)

// StreamMessage opens a streaming chat completion and returns a channel
// of normalized events. Rate-limit/server-error retries happen only on
// the initial connection attempt (doWithRetry); once the stream is open,
// mid-stream error chunks surface as a single retryable StreamEvent and
// the caller (SessionRunner) decides whether to reconnect.
func (c *Client) StreamMessage(ctx context.Context, messages []Message, toolDefs []tools.ToolDef) (<-chan StreamEvent, error) {
	reqBody := ChatRequest{
		Model:         c.model,
		Messages:      messages,
		Stream:        true,
		MaxTokens:     c.maxTokens,
		StreamOptions: &StreamOptions{IncludeUsage: true},
	}
	if len(toolDefs) > 0 {
		reqBody.Tools = toolDefs
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal request: %w", err)
	}
	c.reqLog.LogRequest("outbound", c.model, bodyBytes)

	cfg := defaultRetryConfig(c.maxRetries)
	resp, err := doWithRetry(ctx, cfg, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "text/event-stream")
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 32)
	go c.parseSSEStream(ctx, resp.Body, ch)
	return ch, nil
}

func (c *Client) parseSSEStream(ctx context.Context, body io.ReadCloser, ch chan<- StreamEvent) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 256*1024), 256*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			ch <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			ch <- StreamEvent{Done: true}
			return
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			ch <- StreamEvent{Err: fmt.Errorf("llmclient: parse SSE chunk: %w", err), Retryable: true}
			return
		}
		c.reqLog.LogRequest("inbound", c.model, []byte(data))

		if chunk.Error != nil {
			ch <- StreamEvent{Err: fmt.Errorf("llmclient: stream error: %s", chunk.Error.Message), Retryable: true}
			return
		}

		event := StreamEvent{GenerationID: chunk.ID}
		if chunk.Usage != nil {
			event.Usage = chunk.Usage
		}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.FinishReason != nil {
				event.FinishReason = *choice.FinishReason
			}
			if choice.Delta.Content != nil {
				event.TextDelta = *choice.Delta.Content
			}
			if len(choice.Delta.ToolCalls) > 0 {
				event.ToolCallDeltas = choice.Delta.ToolCalls
			}
		}
		ch <- event
	}

	if err := scanner.Err(); err != nil {
		ch <- StreamEvent{Err: fmt.Errorf("llmclient: read SSE stream: %w", err), Retryable: true}
	}
}

// StreamAccumulateError wraps a mid-stream error with the retryability the
// originating chunk carried, since a plain error loses that classification.
type StreamAccumulateError struct {
	Err       error
	Retryable bool
}

func (e *StreamAccumulateError) Error() string { return e.Err.Error() }
func (e *StreamAccumulateError) Unwrap() error { return e.Err }

// AccumulateStream drains events into a complete Response, invoking onText
// for each text delta as it arrives (for live display). Tool-call deltas
// accumulate purely by appending to Arguments, per spec §4.7.2.
func AccumulateStream(events <-chan StreamEvent, onText func(string)) (*Response, error) {
	var content strings.Builder
	toolCalls := make(map[int]*ToolCall)
	var order []int
	var usage Usage
	var finishReason, genID string

	for event := range events {
		if event.Err != nil {
			return nil, &StreamAccumulateError{Err: event.Err, Retryable: event.Retryable}
		}
		if event.Done {
			break
		}
		if event.GenerationID != "" {
			genID = event.GenerationID
		}
		if event.TextDelta != "" {
			content.WriteString(event.TextDelta)
			if onText != nil {
				onText(event.TextDelta)
			}
		}
		for _, delta := range event.ToolCallDeltas {
			tc, ok := toolCalls[delta.Index]
			if !ok {
				tc = &ToolCall{Type: "function"}
				toolCalls[delta.Index] = tc
				order = append(order, delta.Index)
			}
			if delta.ID != "" {
				tc.ID = delta.ID
			}
			if delta.Function.Name != "" {
				tc.Function.Name = delta.Function.Name
			}
			tc.Function.Arguments += delta.Function.Arguments
		}
		if event.Usage != nil {
			usage = *event.Usage
		}
		if event.FinishReason != "" {
			finishReason = event.FinishReason
		}
	}

	var contentPtr *string
	if content.Len() > 0 {
		s := content.String()
		contentPtr = &s
	}

	var calls []ToolCall
	for _, idx := range order {
		calls = append(calls, *toolCalls[idx])
	}

	msg := Message{Role: "assistant", Content: contentPtr, ToolCalls: calls}
	return &Response{Message: msg, FinishReason: finishReason, Usage: usage, GenerationID: genID}, nil
}
