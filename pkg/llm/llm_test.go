package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
}

func TestMockProviderStream(t *testing.T) {
	mock := &MockProvider{
		Response:  "done",
		ToolCalls: []ToolCall{{Function: FunctionCall{Name: "complete", Arguments: `{"final_report":"x"}`}}},
	}
	stream, err := mock.ChatStream(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	var text string
	var calls int
	for chunk := range stream {
		text += chunk.Content
		calls += len(chunk.ToolCalls)
	}
	if text != "done" || calls != 1 {
		t.Fatalf("unexpected stream content %q with %d tool calls", text, calls)
	}
}

func TestFailingMockProvider(t *testing.T) {
	want := errors.New("down")
	if _, err := (&FailingMockProvider{Err: want}).ChatStream(context.Background(), ChatRequest{}); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
