package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/forgehq/forge/internal/obslog"
	"github.com/forgehq/forge/internal/tools"
)

// Client is a chat-completions client against a configurable,
// OpenAI-compatible base URL.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	http       *http.Client
	maxRetries int
	log        zerolog.Logger
	reqLog     *obslog.RequestLogger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithMaxRetries overrides the default retry count (5) for the
// exponential-backoff schedule; n <= 0 keeps the default.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger injects the process logger and, when debug mode is active,
// the rotating request-log sink.
func WithLogger(logger zerolog.Logger, reqLog *obslog.RequestLogger) Option {
	return func(c *Client) {
		c.log = logger
		c.reqLog = reqLog
	}
}

// New constructs a Client.
func New(apiKey, model string, maxTokens int, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 120 * time.Second},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage issues a non-streaming chat completion.
func (c *Client) SendMessage(ctx context.Context, messages []Message, toolDefs []tools.ToolDef) (*Response, error) {
	reqBody := ChatRequest{Model: c.model, Messages: messages, MaxTokens: c.maxTokens}
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
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("llmclient: decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("llmclient: no choices in response")
	}
	choice := apiResp.Choices[0]
	return &Response{Message: choice.Message, FinishReason: choice.FinishReason, Usage: apiResp.Usage, GenerationID: apiResp.ID}, nil
}
