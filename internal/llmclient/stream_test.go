package llmclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStreamMessageAccumulatesTextDeltas(t *testing.T) {
	body := strings.Join([]string{
		`data: {"id":"gen_1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hello "}}]}`,
		`data: {"id":"gen_1","choices":[{"index":0,"delta":{"content":"world!"},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
		"",
	}, "\n\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(200)
		w.Write([]byte(body))
	}))
	defer server.Close()

	c := New("key", "test-model", 1000, server.URL, WithMaxRetries(0))
	events, err := c.StreamMessage(context.Background(), []Message{TextMessage("user", "hi")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := AccumulateStream(events, nil)
	if err != nil {
		t.Fatalf("unexpected accumulate error: %v", err)
	}
	if resp.Message.ContentString() != "Hello world!" {
		t.Errorf("expected 'Hello world!', got %q", resp.Message.ContentString())
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected finish_reason=stop, got %q", resp.FinishReason)
	}
	if resp.GenerationID != "gen_1" {
		t.Errorf("expected gen_1, got %q", resp.GenerationID)
	}
}

func TestStreamMessageAccumulatesToolCallDeltas(t *testing.T) {
	body := strings.Join([]string{
		`data: {"id":"gen_2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"grep","arguments":"{\"pat"}}]}}]}`,
		`data: {"id":"gen_2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"tern\":\"foo\"}"}}]},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
		"",
	}, "\n\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(200)
		w.Write([]byte(body))
	}))
	defer server.Close()

	c := New("key", "test-model", 1000, server.URL, WithMaxRetries(0))
	events, err := c.StreamMessage(context.Background(), []Message{TextMessage("user", "hi")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := AccumulateStream(events, nil)
	if err != nil {
		t.Fatalf("unexpected accumulate error: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("expected call_1, got %q", tc.ID)
	}
	if tc.Function.Name != "grep" {
		t.Errorf("expected grep, got %q", tc.Function.Name)
	}
	if tc.Function.Arguments != `{"pattern":"foo"}` {
		t.Errorf("expected merged arguments, got %q", tc.Function.Arguments)
	}
}

func TestStreamMessageSurfacesErrorChunkAsRetryable(t *testing.T) {
	body := strings.Join([]string{
		`data: {"error":{"message":"overloaded","code":"server_error"}}`,
		"",
	}, "\n\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(200)
		w.Write([]byte(body))
	}))
	defer server.Close()

	c := New("key", "test-model", 1000, server.URL, WithMaxRetries(0))
	events, err := c.StreamMessage(context.Background(), []Message{TextMessage("user", "hi")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var gotErr bool
	for event := range events {
		if event.Err != nil {
			gotErr = true
			if !event.Retryable {
				t.Error("expected error chunk to surface as retryable")
			}
		}
	}
	if !gotErr {
		t.Fatal("expected an error event")
	}
}

func TestAccumulateStreamPropagatesError(t *testing.T) {
	ch := make(chan StreamEvent, 4)
	ch <- StreamEvent{TextDelta: "partial"}
	ch <- StreamEvent{Err: errStreamTest("boom")}
	close(ch)

	_, err := AccumulateStream(ch, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "boom" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAccumulateStreamPreservesRetryableClassification(t *testing.T) {
	ch := make(chan StreamEvent, 2)
	ch <- StreamEvent{Err: errStreamTest("overloaded"), Retryable: true}
	close(ch)

	_, err := AccumulateStream(ch, nil)
	var sae *StreamAccumulateError
	if !errors.As(err, &sae) {
		t.Fatalf("expected *StreamAccumulateError, got %T", err)
	}
	if !sae.Retryable {
		t.Error("expected Retryable to be preserved")
	}
}

type errStreamTest string

func (e errStreamTest) Error() string { return string(e) }

func TestAccumulateStreamUsage(t *testing.T) {
	ch := make(chan StreamEvent, 4)
	ch <- StreamEvent{TextDelta: "hi"}
	ch <- StreamEvent{Usage: &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
	ch <- StreamEvent{FinishReason: "stop", Done: true}
	close(ch)

	resp, err := AccumulateStream(ch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}
