package llmclient

import "github.com/forgehq/forge/internal/tools"

// ChatRequest is the request body posted to /chat/completions.
type ChatRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	Tools         []tools.ToolDef `json:"tools,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
}

// StreamOptions requests usage accounting alongside the final SSE chunk.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// APIResponse is a non-streaming response from /chat/completions.
type APIResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// StreamChunk is a single SSE data payload.
type StreamChunk struct {
	ID      string         `json:"id"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *ErrorPayload  `json:"error,omitempty"`
}

// ErrorPayload is the shape of an error chunk mid-stream.
type ErrorPayload struct {
	Message  string         `json:"message"`
	Code     string         `json:"code,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StreamChoice is a single choice in a streaming chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// StreamDelta carries the incremental content of one streaming chunk.
type StreamDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is one incremental fragment of a tool call under
// construction. The incremental state is purely an append to Arguments.
type ToolCallDelta struct {
	Index    int                  `json:"index"`
	ID       string               `json:"id,omitempty"`
	Function FunctionCallFragment `json:"function,omitempty"`
}

// FunctionCallFragment is the function-call portion of a tool-call delta.
type FunctionCallFragment struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamEvent is one normalized event handed to the caller consuming a
// stream: either a text delta, a set of tool-call deltas, a finish
// signal, final usage, or a terminal error.
type StreamEvent struct {
	TextDelta      string
	ToolCallDeltas []ToolCallDelta
	FinishReason   string
	Usage          *Usage
	GenerationID   string
	Done           bool
	Err            error
	Retryable      bool
}
